package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeexec/internal/common/cache"
	"codeexec/internal/common/mq"
	"codeexec/internal/execution/adapter"
	"codeexec/internal/execution/sandbox/engine"
	"codeexec/internal/execution/sandbox/security"
	"codeexec/internal/execution/sandbox/spec"
	"codeexec/internal/execution/service"
	"codeexec/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxHeaderBytes  = 1 << 20
	defaultMaxBodyBytes    = 1 << 20

	defaultSweepAge      = 10 * time.Minute
	defaultAdmissionWait = 2 * time.Second
	defaultMetricsPath   = "/metrics"
	defaultEventTopic    = "codeexec.executions"
	defaultPublishWait   = 3 * time.Second
	defaultRateWindow    = time.Minute

	sandboxProfile = "default"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	Gzip            bool          `yaml:"gzip"`
}

// ExecutionConfig holds orchestrator limits.
type ExecutionConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	BuildTimeout      time.Duration `yaml:"buildTimeout"`
	MaxOutputBytes    int64         `yaml:"maxOutputBytes"`
	MaxCodeBytes      int           `yaml:"maxCodeBytes"`
	MaxTestInputBytes int           `yaml:"maxTestInputBytes"`
	ScratchDir        string        `yaml:"scratchDir"`
	SweepAge          time.Duration `yaml:"sweepAge"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	AdmissionWait     time.Duration `yaml:"admissionWait"`
}

// SandboxConfig holds isolation settings. Everything is off by default.
type SandboxConfig struct {
	HelperPath       string        `yaml:"helperPath"`
	CgroupRoot       string        `yaml:"cgroupRoot"`
	SeccompDir       string        `yaml:"seccompDir"`
	SeccompProfile   string        `yaml:"seccompProfile"`
	EnableHelper     bool          `yaml:"enableHelper"`
	EnableSeccomp    bool          `yaml:"enableSeccomp"`
	EnableCgroup     bool          `yaml:"enableCgroup"`
	EnableNamespaces bool          `yaml:"enableNamespaces"`
	RootFS           string        `yaml:"rootfs"`
	MountWorkDir     bool          `yaml:"mountWorkDir"`
	DisableNetwork   bool          `yaml:"disableNetwork"`
	RunAsUID         int           `yaml:"runAsUID"`
	RunAsGID         int           `yaml:"runAsGID"`
	MemoryMB         int64         `yaml:"memoryMB"`
	StackMB          int64         `yaml:"stackMB"`
	FileSizeMB       int64         `yaml:"fileSizeMB"`
	PIDs             int64         `yaml:"pids"`
	WaitDelay        time.Duration `yaml:"waitDelay"`
	Env              []string      `yaml:"env"`
}

// RateLimitConfig holds the optional redis-backed limiter settings.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Window   time.Duration `yaml:"window"`
	IPMax    int           `yaml:"ipMax"`
	RouteMax int           `yaml:"routeMax"`
	FailOpen bool          `yaml:"failOpen"`
}

// KafkaConfig holds the execution event publisher settings.
type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Brokers        []string      `yaml:"brokers"`
	ClientID       string        `yaml:"clientID"`
	Topic          string        `yaml:"topic"`
	BatchSize      int           `yaml:"batchSize"`
	BatchTimeout   time.Duration `yaml:"batchTimeout"`
	Compression    string        `yaml:"compression"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// MetricsConfig holds prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials"`
	MaxAge           time.Duration `yaml:"maxAge"`
}

// AppConfig holds the execution service configuration.
type AppConfig struct {
	Server    ServerConfig                `yaml:"server"`
	Logger    logger.Config               `yaml:"logger"`
	Execution ExecutionConfig             `yaml:"execution"`
	Sandbox   SandboxConfig               `yaml:"sandbox"`
	Languages map[string]adapter.Override `yaml:"languages"`
	Redis     cache.RedisConfig           `yaml:"redis"`
	Rate      RateLimitConfig             `yaml:"rateLimit"`
	Kafka     KafkaConfig                 `yaml:"kafka"`
	Metrics   MetricsConfig               `yaml:"metrics"`
	CORS      CORSConfig                  `yaml:"cors"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path and applies defaults. An empty path yields the
// defaults alone.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	exec := &cfg.Execution
	if exec.Timeout == 0 {
		exec.Timeout = service.DefaultTimeout
	}
	if exec.BuildTimeout == 0 {
		exec.BuildTimeout = service.DefaultBuildTimeout
	}
	if exec.MaxOutputBytes == 0 {
		exec.MaxOutputBytes = service.DefaultMaxOutputBytes
	}
	if exec.MaxCodeBytes == 0 {
		exec.MaxCodeBytes = service.DefaultMaxCodeBytes
	}
	if exec.MaxTestInputBytes == 0 {
		exec.MaxTestInputBytes = service.DefaultMaxTestInputBytes
	}
	if exec.ScratchDir == "" {
		exec.ScratchDir = filepath.Join(os.TempDir(), "codeexec")
	}
	if exec.SweepAge == 0 {
		exec.SweepAge = defaultSweepAge
	}
	if exec.AdmissionWait == 0 {
		exec.AdmissionWait = defaultAdmissionWait
	}
	if exec.Timeout < 0 || exec.BuildTimeout < 0 || exec.MaxConcurrent < 0 {
		return nil, fmt.Errorf("execution limits must not be negative")
	}
	// The response is written only after build and run finish.
	if cfg.Server.WriteTimeout <= exec.Timeout+exec.BuildTimeout {
		return nil, fmt.Errorf("server.writeTimeout must exceed execution.timeout + execution.buildTimeout")
	}
	if int64(exec.MaxCodeBytes+exec.MaxTestInputBytes) > cfg.Server.MaxBodyBytes {
		return nil, fmt.Errorf("server.maxBodyBytes is smaller than the code and test input limits")
	}

	if cfg.Sandbox.EnableHelper && cfg.Sandbox.HelperPath == "" {
		cfg.Sandbox.HelperPath = "sandbox-init"
	}
	if cfg.Sandbox.EnableCgroup && cfg.Sandbox.CgroupRoot == "" {
		return nil, fmt.Errorf("sandbox.cgroupRoot is required when cgroups are enabled")
	}
	if cfg.Sandbox.RootFS != "" && !cfg.Sandbox.MountWorkDir {
		return nil, fmt.Errorf("sandbox.mountWorkDir is required with a rootfs")
	}

	if cfg.Rate.Enabled {
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required when rateLimit is enabled")
		}
		if cfg.Rate.Window == 0 {
			cfg.Rate.Window = defaultRateWindow
		}
		cfg.Redis.ApplyDefaults()
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			cfg.Kafka.Topic = defaultEventTopic
		}
		if cfg.Kafka.PublishTimeout == 0 {
			cfg.Kafka.PublishTimeout = defaultPublishWait
		}
		if _, err := parseCompression(cfg.Kafka.Compression); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	return &cfg, nil
}

func toEngineConfig(cfg SandboxConfig) engine.Config {
	return engine.Config{
		EnableHelper:     cfg.EnableHelper,
		HelperPath:       cfg.HelperPath,
		CgroupRoot:       cfg.CgroupRoot,
		SeccompDir:       cfg.SeccompDir,
		EnableSeccomp:    cfg.EnableSeccomp,
		EnableCgroup:     cfg.EnableCgroup,
		EnableNamespaces: cfg.EnableNamespaces,
		WaitDelay:        cfg.WaitDelay,
	}
}

func toProfileSet(cfg SandboxConfig) security.ProfileSet {
	return security.ProfileSet{
		sandboxProfile: {
			RootFS:         cfg.RootFS,
			SeccompProfile: cfg.SeccompProfile,
			DisableNetwork: cfg.DisableNetwork,
			RunAsUID:       cfg.RunAsUID,
			RunAsGID:       cfg.RunAsGID,
		},
	}
}

func toResourceLimit(cfg SandboxConfig) spec.ResourceLimit {
	return spec.ResourceLimit{
		MemoryMB:   cfg.MemoryMB,
		StackMB:    cfg.StackMB,
		FileSizeMB: cfg.FileSizeMB,
		PIDs:       cfg.PIDs,
	}
}

func toMQConfig(cfg KafkaConfig) (mq.KafkaConfig, error) {
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return mq.KafkaConfig{}, err
	}
	return mq.KafkaConfig{
		Brokers:      cfg.Brokers,
		ClientID:     cfg.ClientID,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  compression,
		Async:        true,
	}, nil
}

func parseCompression(value string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported kafka compression: %s", value)
	}
}
