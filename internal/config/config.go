package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CLI      CLIConfig      `mapstructure:"cli"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ServerConfig 服务器配置（API 模式）
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CLIConfig 命令行默认值（等价于旧版 INI 的 [cli] 段，命令行参数优先）
type CLIConfig struct {
	User      string `mapstructure:"user"`
	IPFile    string `mapstructure:"ip_file"`
	Manual    bool   `mapstructure:"manual"`
	Cmds      string `mapstructure:"cmds"`
	CmdFile   string `mapstructure:"cmd_file"`
	OutputDir string `mapstructure:"output_dir"`
	Combine   bool   `mapstructure:"combine"`
	Workers   int    `mapstructure:"workers"`
	LogLevel  string `mapstructure:"log_level"`
}

// RunnerConfig 批量执行器配置
type RunnerConfig struct {
	// MaxWorkers 并发设备会话上限，也是排队的准入控制
	MaxWorkers int `mapstructure:"max_workers"`
	// DataDir 相对输入文件（IP 清单、命令清单）的查找根目录
	DataDir string `mapstructure:"data_dir"`
	// OutputDir 输出产物根目录，运行可指定子目录
	OutputDir string `mapstructure:"output_dir"`
	// CommandTimeout 单条命令读超时
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 产物存储配置（本地落盘后可选镜像到对象存储）
type StorageConfig struct {
	// Backend 镜像后端：local（不镜像）| minio
	Backend string      `mapstructure:"backend"`
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	// Prefix 对象路径顶层前缀
	Prefix string `mapstructure:"prefix"`
}

var globalConfig *Config

// Load 加载配置文件；path 为空时按默认路径查找，找不到则使用内置默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	// 环境变量覆盖，例如 SHOW_CLI_RUNNER_MAX_WORKERS
	v.SetEnvPrefix("SHOW_CLI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 未显式指定配置文件时允许缺省运行
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 600*time.Second)

	// 运行器默认：5 个并发会话，数据与输出目录沿用脚本时代约定
	v.SetDefault("runner.max_workers", 5)
	v.SetDefault("runner.data_dir", "./data")
	v.SetDefault("runner.output_dir", "./outputs")
	v.SetDefault("runner.command_timeout", 300*time.Second)

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", 15*time.Second)
	v.SetDefault("ssh.keep_alive", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")

	v.SetDefault("database.sqlite.enabled", false)
	v.SetDefault("database.sqlite.path", "./data/showcli.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.minio.prefix", "show-runs")
	v.SetDefault("storage.minio.secure", false)
}

// Validate 校验配置，发现问题时在派发前失败
func (c *Config) Validate() error {
	if c.Runner.MaxWorkers <= 0 {
		return fmt.Errorf("invalid runner.max_workers: %d (must be > 0)", c.Runner.MaxWorkers)
	}
	if strings.TrimSpace(c.Runner.OutputDir) == "" {
		return fmt.Errorf("runner.output_dir must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "", "local", "minio":
	default:
		return fmt.Errorf("invalid storage.backend: %q (expect local or minio)", c.Storage.Backend)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
