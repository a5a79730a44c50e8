package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/internal/database"
	"github.com/showclipro/showclipro/internal/input"
	"github.com/showclipro/showclipro/internal/model"
	"github.com/showclipro/showclipro/internal/service"
	"github.com/showclipro/showclipro/pkg/logger"
	sshx "github.com/showclipro/showclipro/pkg/ssh"
)

// cliOptions 命令行参数；未显式指定的项回落到配置文件 [cli] 段
type cliOptions struct {
	configPath string
	user       string
	ipFile     string
	manual     bool
	cmds       string
	cmdFile    string
	outputDir  string
	combine    bool
	workers    int
	logLevel   string
}

func main() {
	opts, setFlags := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fatal("config error: %v", err)
	}
	applyCLIDefaults(opts, setFlags, cfg)

	if err := logger.Init(logger.Config{
		Level:  opts.logLevel,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		fatal("logger error: %v", err)
	}

	targets, err := loadTargets(opts, cfg)
	if err != nil {
		fatal("%v", err)
	}
	if len(targets) == 0 {
		fatal("no targets to run")
	}

	commands, err := loadCommands(opts, cfg)
	if err != nil {
		fatal("%v", err)
	}
	if len(commands) == 0 {
		fatal("no commands to run")
	}

	if strings.TrimSpace(opts.user) == "" {
		fatal("username is required (-user or cli.user in config)")
	}

	password, err := promptSecret(fmt.Sprintf("Password for %s: ", opts.user))
	if err != nil {
		fatal("failed to read password: %v", err)
	}
	enablePassword, err := promptSecret("Enable password (empty to reuse login password): ")
	if err != nil {
		fatal("failed to read enable password: %v", err)
	}
	if enablePassword == "" {
		enablePassword = password
	}

	// 命令行指定输出目录时整体替换配置值
	if strings.TrimSpace(opts.outputDir) != "" {
		cfg.Runner.OutputDir = opts.outputDir
	}

	runner := service.NewRunnerService(cfg)
	if cfg.Database.SQLite.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.Warn("Run history disabled, database init failed", "error", err)
		} else {
			defer database.Close()
			if history, err := service.NewHistoryStore(); err == nil {
				runner.SetHistory(history)
			}
		}
	}

	req := &service.RunRequest{
		Targets:  targets,
		Commands: commands,
		Credentials: sshx.Credentials{
			Username:       opts.user,
			Password:       password,
			EnablePassword: enablePassword,
		},
		Combine:    opts.combine,
		MaxWorkers: opts.workers,
		Source:     model.RunSourceCLI,
	}

	summary, err := runner.Execute(context.Background(), req)
	if err != nil {
		fatal("%v", err)
	}

	if summary.DroppedDuplicates > 0 {
		fmt.Printf("Skipped %d duplicate target(s)\n", summary.DroppedDuplicates)
	}
	fmt.Printf("Done: %d succeeded, %d failed, output in %s\n",
		summary.Succeeded, summary.Failed, summary.OutputDir)
	if summary.Failed > 0 {
		fmt.Printf("Failures listed in %s and %s\n",
			service.ErrorLogFileName, service.FailedIPsFileName)
		os.Exit(1)
	}
}

// parseFlags 解析命令行参数并记录哪些被显式设置
func parseFlags() (*cliOptions, map[string]bool) {
	opts := &cliOptions{}
	flag.StringVar(&opts.configPath, "config", "", "config file path (default: ./configs/config.yaml)")
	flag.StringVar(&opts.user, "user", "", "SSH username")
	flag.StringVar(&opts.ipFile, "ip-file", "", "device address list file, one per line")
	flag.BoolVar(&opts.manual, "manual", false, "enter device addresses interactively, end with DONE")
	flag.StringVar(&opts.cmds, "cmds", "", "comma separated command list")
	flag.StringVar(&opts.cmdFile, "cmd-file", "", "command list file, one per line")
	flag.StringVar(&opts.outputDir, "output-dir", "", "output directory for run artifacts")
	flag.BoolVar(&opts.combine, "combine", false, "append all device outputs into one combined file")
	flag.IntVar(&opts.workers, "workers", 0, "max concurrent device sessions")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flag.Parse()

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	return opts, setFlags
}

// applyCLIDefaults 未显式传参的项回落到配置文件 [cli] 段
func applyCLIDefaults(opts *cliOptions, setFlags map[string]bool, cfg *config.Config) {
	if !setFlags["user"] && opts.user == "" {
		opts.user = cfg.CLI.User
	}
	if !setFlags["ip-file"] && opts.ipFile == "" {
		opts.ipFile = cfg.CLI.IPFile
	}
	if !setFlags["manual"] {
		opts.manual = cfg.CLI.Manual
	}
	if !setFlags["cmds"] && opts.cmds == "" {
		opts.cmds = cfg.CLI.Cmds
	}
	if !setFlags["cmd-file"] && opts.cmdFile == "" {
		opts.cmdFile = cfg.CLI.CmdFile
	}
	if !setFlags["output-dir"] && opts.outputDir == "" {
		opts.outputDir = cfg.CLI.OutputDir
	}
	if !setFlags["combine"] {
		opts.combine = cfg.CLI.Combine
	}
	if !setFlags["workers"] && opts.workers == 0 {
		opts.workers = cfg.CLI.Workers
	}
	if !setFlags["log-level"] && opts.logLevel == "" {
		opts.logLevel = cfg.CLI.LogLevel
	}
	if opts.logLevel == "" {
		opts.logLevel = cfg.Log.Level
	}
}

// loadTargets 手工录入优先于清单文件
func loadTargets(opts *cliOptions, cfg *config.Config) ([]string, error) {
	if opts.manual {
		fmt.Println("Enter device addresses one per line, finish with DONE:")
		return input.ReadManualTargets(os.Stdin)
	}
	if strings.TrimSpace(opts.ipFile) == "" {
		return nil, fmt.Errorf("no target source: pass -ip-file or -manual")
	}
	return input.LoadTargets(cfg.Runner.DataDir, opts.ipFile)
}

// loadCommands 直接给出的命令串优先于命令清单文件
func loadCommands(opts *cliOptions, cfg *config.Config) ([]string, error) {
	if strings.TrimSpace(opts.cmds) != "" {
		return input.ParseCommandList(opts.cmds), nil
	}
	if strings.TrimSpace(opts.cmdFile) == "" {
		return nil, fmt.Errorf("no command source: pass -cmds or -cmd-file")
	}
	return input.LoadCommands(cfg.Runner.DataDir, opts.cmdFile)
}

// promptSecret 不回显读取口令；非终端输入时退化为按行读取
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		// 空行或 EOF 视为未输入
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// fatal 打印单条诊断信息并以非零码退出
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
