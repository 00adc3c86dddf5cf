package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tanq16/rangeload/internal/downloader"
	"github.com/tanq16/rangeload/internal/utils"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type DownloadConfig struct {
	OutDir       string        `mapstructure:"out_dir" yaml:"out_dir"`
	TempDir      string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	Connections  int           `mapstructure:"connections" yaml:"connections"`
	BufferSize   int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	Restarts     int           `mapstructure:"restarts" yaml:"restarts"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

type HTTPConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy            string        `mapstructure:"proxy" yaml:"proxy"`
	ProxyUsername    string        `mapstructure:"proxy_username" yaml:"proxy_username"`
	ProxyPassword    string        `mapstructure:"proxy_password" yaml:"proxy_password"`
	Headers          []string      `mapstructure:"headers" yaml:"headers"`
	HighThreadMode   bool          `mapstructure:"high_thread_mode" yaml:"high_thread_mode"`
}

type S3Config struct {
	Profile         string `mapstructure:"profile" yaml:"profile"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Debug bool   `mapstructure:"debug" yaml:"debug"`
	File  string `mapstructure:"file" yaml:"file"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"output-dir":         "download.out_dir",
	"temp-dir":           "download.temp_dir",
	"connections":        "download.connections",
	"buffer-size":        "download.buffer_size",
	"restarts":           "download.restarts",
	"timeout":            "http.timeout",
	"keep-alive-timeout": "http.keep_alive_timeout",
	"user-agent":         "http.user_agent",
	"proxy":              "http.proxy",
	"proxy-username":     "http.proxy_username",
	"proxy-password":     "http.proxy_password",
	"header":             "http.headers",
	"high-thread-mode":   "http.high_thread_mode",
	"s3-profile":         "s3.profile",
	"s3-region":          "s3.region",
	"s3-endpoint":        "s3.endpoint",
	"addr":               "server.addr",
	"debug":              "log.debug",
}

// Load merges defaults, the optional YAML file at path, RANGELOAD_* environment
// variables and the flags that were set, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("download.out_dir", ".")
	v.SetDefault("download.temp_dir", "")
	v.SetDefault("download.connections", 0)
	v.SetDefault("download.buffer_size", utils.DefaultBufferSize)
	v.SetDefault("download.restarts", 0)
	v.SetDefault("download.probe_timeout", "30s")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.keep_alive_timeout", "90s")
	v.SetDefault("http.user_agent", utils.ToolUserAgent)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.proxy_username", "")
	v.SetDefault("http.proxy_password", "")
	v.SetDefault("http.headers", []string{})
	v.SetDefault("http.high_thread_mode", false)
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", utils.LogFile)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RANGELOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.Restarts < 0 {
		return errors.New("download.restarts cannot be negative")
	}
	if c.Download.OutDir == "" {
		c.Download.OutDir = "."
	}
	if c.Download.TempDir == "" {
		c.Download.TempDir = filepath.Join(c.Download.OutDir, utils.TempDirName)
	}
	if c.Download.Connections <= 0 {
		c.Download.Connections = runtime.NumCPU()
	}
	if c.Download.BufferSize <= 0 {
		c.Download.BufferSize = utils.DefaultBufferSize
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 60 * time.Second
	}
	if c.HTTP.KeepAliveTimeout <= 0 {
		c.HTTP.KeepAliveTimeout = 90 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return nil
}

func (c *Config) HTTPClient() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:        c.HTTP.Timeout,
		KATimeout:      c.HTTP.KeepAliveTimeout,
		ProxyURL:       c.HTTP.Proxy,
		ProxyUsername:  c.HTTP.ProxyUsername,
		ProxyPassword:  c.HTTP.ProxyPassword,
		UserAgent:      c.HTTP.UserAgent,
		Headers:        utils.ParseHeaderArgs(c.HTTP.Headers),
		HighThreadMode: c.HTTP.HighThreadMode,
	}
}

func (c *Config) S3Client() utils.S3Config {
	return utils.S3Config{
		Profile:         c.S3.Profile,
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
	}
}

func (c *Config) ManagerOptions() downloader.Options {
	return downloader.Options{
		OutputDir:    c.Download.OutDir,
		TempDir:      c.Download.TempDir,
		Connections:  c.Download.Connections,
		BufferSize:   c.Download.BufferSize,
		ProbeTimeout: c.Download.ProbeTimeout,
	}
}
