package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH传输配置
type Config struct {
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// Credentials 登录与提权口令；仅存于内存，不落盘不入日志
type Credentials struct {
	Username       string
	Password       string
	EnablePassword string
}

// Transport 会话传输：对单台设备建立交互会话
type Transport interface {
	Open(ctx context.Context, host string, creds Credentials) (Session, error)
}

// Session 设备交互会话
type Session interface {
	// Enable 进入特权模式
	Enable() error
	// Prompt 当前提示符（含结尾定界符）
	Prompt() string
	// Send 发送命令并读取回显，读满提示符或超时返回
	Send(cmd string, timeout time.Duration) (string, error)
	// Close 关闭会话，任何退出路径都应调用
	Close() error
}

// promptSuffixes 提示符后缀启发式（Cisco/Huawei/H3C 通用）
var promptSuffixes = []string{"#", ">", "]"}

// Client 基于 golang.org/x/crypto/ssh 的传输实现
type Client struct {
	config *Config
}

// NewClient 创建SSH传输
func NewClient(config *Config) *Client {
	if config.Port <= 0 {
		config.Port = 22
	}
	return &Client{config: config}
}

// clientConfig 构建兼容老旧网络设备的SSH配置
func (c *Client) clientConfig(creds Credentials) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.ConnectTimeout,
		Config: ssh.Config{
			// 支持旧版本的密钥交换算法
			KeyExchanges: []string{
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
			},
			// 支持旧版本的加密算法
			Ciphers: []string{
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"aes128-cbc",
				"aes192-cbc",
				"aes256-cbc",
				"3des-cbc",
			},
			// 支持旧版本的MAC算法
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		// 支持旧版本主机密钥算法
		HostKeyAlgorithms: []string{
			"ssh-rsa",
			"rsa-sha2-256",
			"rsa-sha2-512",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
		},
	}

	// 同时尝试 password 与 keyboard-interactive，提高与网络设备的兼容性
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(creds.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = creds.Password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Open 建立到设备的交互式 PTY Shell 会话
func (c *Client) Open(ctx context.Context, host string, creds Credentials) (Session, error) {
	address := net.JoinHostPort(host, fmt.Sprintf("%d", c.config.Port))

	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, c.clientConfig(creds))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SSH connection: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := newShellSession(client, creds)
	if err != nil {
		client.Close()
		return nil, err
	}

	// 保活机制：连接断开后尽早让后续命令失败
	if c.config.KeepAlive > 0 {
		go keepAlive(client, c.config.KeepAlive, sess.closed)
	}
	return sess, nil
}

// keepAlive 周期性发送保活请求
func keepAlive(client *ssh.Client, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", false, nil); err != nil {
				return
			}
		}
	}
}

// shellSession 单一 PTY Shell 上的串行命令会话
type shellSession struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	lines   chan string
	creds   Credentials
	prompt  string
	closed  chan struct{}
	once    sync.Once
}

func newShellSession(client *ssh.Client, creds Credentials) (*shellSession, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 启用回显，兼容网络设备CLI；按终端类型回退
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 80, 24, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	s := &shellSession{
		client:  client,
		session: session,
		stdin:   stdin,
		lines:   make(chan string, 4096),
		creds:   creds,
		closed:  make(chan struct{}),
	}

	// 读取协程：按行推送，统一换行符
	go func() {
		defer close(s.lines)
		buf := make([]byte, 2048)
		var acc strings.Builder
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				text := strings.ReplaceAll(acc.String(), "\r\n", "\n")
				text = strings.ReplaceAll(text, "\r", "")
				parts := strings.Split(text, "\n")
				acc.Reset()
				// 最后一段可能不完整，留待下次
				acc.WriteString(parts[len(parts)-1])
				for _, line := range parts[:len(parts)-1] {
					s.lines <- line
				}
			}
			if err != nil {
				// 残留的未换行内容（通常是提示符本身）也作为一行推出
				if tail := acc.String(); strings.TrimSpace(tail) != "" {
					s.lines <- tail
				}
				return
			}
		}
	}()

	// 诱发设备输出首个提示符并等待
	_, _ = stdin.Write([]byte("\r\n"))
	prompt, err := s.waitPrompt(10 * time.Second)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to detect prompt: %w", err)
	}
	s.prompt = prompt
	return s, nil
}

// sanitize 清洗 ANSI 转义序列与控制字符，便于稳定的提示符检测
func sanitize(s string) string {
	b := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b { // ESC
			skip = true
			continue
		}
		if ch < 0x20 && ch != '\t' {
			continue
		}
		b = append(b, ch)
	}
	return strings.TrimSpace(string(b))
}

// isPrompt 判断行是否为提示符
func isPrompt(line string) bool {
	trimmed := sanitize(line)
	if trimmed == "" {
		return false
	}
	for _, suf := range promptSuffixes {
		if strings.HasSuffix(trimmed, suf) {
			return true
		}
	}
	return false
}

// waitPrompt 等待下一个提示符行，返回清洗后的提示符
func (s *shellSession) waitPrompt(timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return "", fmt.Errorf("session closed while waiting for prompt")
			}
			if isPrompt(line) {
				return sanitize(line), nil
			}
		case <-deadline.C:
			return "", fmt.Errorf("timed out after %s", timeout)
		}
	}
}

// drain 丢弃残留行（横幅、上一条命令的迟到回显）
func (s *shellSession) drain() {
	for {
		select {
		case <-s.lines:
		default:
			return
		}
	}
}

// Prompt 当前提示符
func (s *shellSession) Prompt() string {
	return s.prompt
}

// Enable 进入特权模式；遇到密码提示自动应答 enable 口令
func (s *shellSession) Enable() error {
	// 已处于特权模式
	if strings.HasSuffix(s.prompt, "#") {
		return nil
	}
	s.drain()
	if _, err := s.stdin.Write([]byte("enable\r\n")); err != nil {
		return fmt.Errorf("enable: %w", err)
	}

	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return fmt.Errorf("enable: session closed")
			}
			clean := sanitize(line)
			lower := strings.ToLower(clean)
			switch {
			case strings.Contains(lower, "password"):
				if _, err := s.stdin.Write([]byte(s.creds.EnablePassword + "\r\n")); err != nil {
					return fmt.Errorf("enable: %w", err)
				}
			case strings.Contains(lower, "access denied") || strings.Contains(lower, "bad secret"):
				return fmt.Errorf("enable: authentication rejected")
			case isPrompt(clean) && strings.HasSuffix(clean, "#"):
				s.prompt = clean
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("enable: timed out waiting for privileged prompt")
		}
	}
}

// Send 发送命令并收集输出直到下一个提示符；超时返回已读内容与错误
func (s *shellSession) Send(cmd string, timeout time.Duration) (string, error) {
	s.drain()
	if _, err := s.stdin.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("failed to write command: %w", err)
	}

	var out strings.Builder
	echoPending := true
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return out.String(), fmt.Errorf("session closed during command")
			}
			clean := sanitize(line)
			// 吞掉命令自身的回显（可能带提示符前缀）
			if echoPending && clean != "" {
				if strings.HasSuffix(clean, strings.TrimSpace(cmd)) {
					echoPending = false
					continue
				}
			}
			if isPrompt(clean) {
				// 命令结束标志；提示符不计入输出
				s.prompt = clean
				return out.String(), nil
			}
			out.WriteString(line)
			out.WriteString("\n")
			if strings.TrimSpace(clean) != "" {
				echoPending = false
			}
		case <-deadline.C:
			return out.String(), fmt.Errorf("command %q timed out after %s", cmd, timeout)
		}
	}
}

// Close 关闭会话与底层连接，可重复调用
func (s *shellSession) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		// 尽力优雅退出远端 Shell
		_, _ = s.stdin.Write([]byte("exit\r\n"))
		_ = s.stdin.Close()
		s.session.Close()
		err = s.client.Close()
	})
	return err
}
