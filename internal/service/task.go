package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/showclipro/showclipro/internal/util"
	sshx "github.com/showclipro/showclipro/pkg/ssh"
)

// TaskResult 单台设备的执行结果；Succeeded 为真时 Hostname/Output 有效，
// 否则 Err 形如 "<target>: <cause>"
type TaskResult struct {
	Target    string
	Succeeded bool
	Hostname  string
	Output    string
	Err       string
	Duration  time.Duration
}

// deviceTask 一台设备上整个命令序列的执行单元。
// 它不触碰任何共享状态，所有失败都被吸收为 TaskResult，绝不向外抛出。
type deviceTask struct {
	target     string
	commands   []string
	creds      sshx.Credentials
	transport  sshx.Transport
	cmdTimeout time.Duration
}

// Run 执行整批命令并返回唯一一个结果
func (t *deviceTask) Run(ctx context.Context) (result TaskResult) {
	start := time.Now()
	result = TaskResult{Target: t.target}

	// 任务边界兜底：传输实现的 panic 也转化为失败结果
	defer func() {
		if r := recover(); r != nil {
			result.Succeeded = false
			result.Hostname = ""
			result.Output = ""
			result.Err = fmt.Sprintf("%s: panic: %v", t.target, r)
			result.Duration = time.Since(start)
		}
	}()

	fail := func(err error) TaskResult {
		result.Succeeded = false
		result.Err = fmt.Sprintf("%s: %v", t.target, err)
		result.Duration = time.Since(start)
		return result
	}

	session, err := t.transport.Open(ctx, t.target, t.creds)
	if err != nil {
		return fail(err)
	}
	defer session.Close()

	if err := session.Enable(); err != nil {
		return fail(err)
	}

	hostname := trimPromptDelimiter(session.Prompt())

	var buf strings.Builder
	for _, cmd := range t.commands {
		output, err := session.Send(cmd, t.cmdTimeout)
		if err != nil {
			return fail(err)
		}
		output = util.EnsureUTF8(output)
		fmt.Fprintf(&buf, "\n=== %s (%s) - %s ===\n%s\n", hostname, t.target, cmd, output)
	}

	result.Succeeded = true
	result.Hostname = hostname
	result.Output = buf.String()
	result.Duration = time.Since(start)
	return result
}

// trimPromptDelimiter 去掉提示符结尾的定界符得到主机名
func trimPromptDelimiter(prompt string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(prompt), "#>]"))
}
