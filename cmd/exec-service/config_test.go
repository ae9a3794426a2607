package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeexec/internal/execution/service"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec_service.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.MaxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Execution.Timeout != service.DefaultTimeout || cfg.Execution.BuildTimeout != service.DefaultBuildTimeout {
		t.Fatalf("unexpected timeouts: %+v", cfg.Execution)
	}
	if cfg.Execution.ScratchDir == "" || cfg.Metrics.Path != defaultMetricsPath {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Sandbox.EnableHelper || cfg.Rate.Enabled || cfg.Kafka.Enabled {
		t.Fatalf("optional features must be off by default")
	}
}

func TestLoadAppConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9090
  writeTimeout: 40s
  gzip: true
execution:
  timeout: 5s
  maxConcurrent: 8
sandbox:
  enableHelper: true
  memoryMB: 256
  pids: 64
languages:
  python:
    runCmd: "/usr/bin/python3 -u {src}"
    env: ["PYTHONHASHSEED=0"]
  typescript:
    disabled: true
redis:
  addr: 127.0.0.1:6379
rateLimit:
  enabled: true
  ipMax: 30
kafka:
  enabled: true
  brokers: ["127.0.0.1:9092"]
  compression: zstd
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || !cfg.Server.Gzip {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Execution.Timeout != 5*time.Second || cfg.Execution.MaxConcurrent != 8 {
		t.Fatalf("unexpected execution config: %+v", cfg.Execution)
	}
	if cfg.Sandbox.HelperPath != "sandbox-init" {
		t.Fatalf("helper path default not applied: %q", cfg.Sandbox.HelperPath)
	}
	if cfg.Languages["python"].RunCmd != "/usr/bin/python3 -u {src}" || !cfg.Languages["typescript"].Disabled {
		t.Fatalf("unexpected language overrides: %+v", cfg.Languages)
	}
	if cfg.Rate.Window != defaultRateWindow || cfg.Redis.PoolSize == 0 {
		t.Fatalf("rate limit defaults not applied: %+v %+v", cfg.Rate, cfg.Redis)
	}
	if cfg.Kafka.Topic != defaultEventTopic {
		t.Fatalf("unexpected topic: %q", cfg.Kafka.Topic)
	}

	mqCfg, err := toMQConfig(cfg.Kafka)
	if err != nil {
		t.Fatalf("mq config: %v", err)
	}
	if mqCfg.Compression != kafka.Zstd || !mqCfg.Async {
		t.Fatalf("unexpected mq config: %+v", mqCfg)
	}

	limits := toResourceLimit(cfg.Sandbox)
	if limits.MemoryMB != 256 || limits.PIDs != 64 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
	if _, err := toProfileSet(cfg.Sandbox).Resolve(sandboxProfile); err != nil {
		t.Fatalf("resolve profile: %v", err)
	}
}

func TestLoadAppConfigRejects(t *testing.T) {
	cases := map[string]string{
		"short write timeout":  "server:\n  writeTimeout: 5s\n",
		"rate without redis":   "rateLimit:\n  enabled: true\n",
		"kafka without broker": "kafka:\n  enabled: true\n",
		"bad compression":      "kafka:\n  enabled: true\n  brokers: [a:9092]\n  compression: brotli\n",
		"cgroup without root":  "sandbox:\n  enableCgroup: true\n",
		"rootfs without mount": "sandbox:\n  rootfs: /srv/rootfs\n",
		"body below limits":    "server:\n  maxBodyBytes: 1024\n",
		"malformed yaml":       "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadAppConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"":       0,
		"none":   0,
		"GZIP":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
	}
	for in, want := range cases {
		got, err := parseCompression(in)
		if err != nil || got != want {
			t.Fatalf("parseCompression(%q) = %v, %v", in, got, err)
		}
	}
}
