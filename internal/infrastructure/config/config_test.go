package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  id: "test-bridge"
cloud:
  email: "installer@example.com"
  password: "secret"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: true
  host: "127.0.0.1"
  port: 8087
  token: "local-api-token"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "test-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-bridge")
	}
	if cfg.Cloud.Email != "installer@example.com" {
		t.Errorf("Cloud.Email = %q, want %q", cfg.Cloud.Email, "installer@example.com")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Defaults survive a partial file
	if cfg.Cloud.BaseURL != "https://dkn.airzonecloud.com" {
		t.Errorf("Cloud.BaseURL = %q, want default", cfg.Cloud.BaseURL)
	}
	if got := cfg.GetPollInterval(); got != 10*time.Second {
		t.Errorf("GetPollInterval() = %v, want 10s", got)
	}
	if got := cfg.GetStaleAfter(); got != 10*time.Minute {
		t.Errorf("GetStaleAfter() = %v, want 10m", got)
	}
	if got := cfg.GetOfflineDebounce(); got != 90*time.Second {
		t.Errorf("GetOfflineDebounce() = %v, want 90s", got)
	}
	if cfg.Sync.EnableDualSetpoint {
		t.Error("EnableDualSetpoint should default to false")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("cloud: [not a map"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Enabled = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for missing credentials, got nil")
	}
	if !strings.Contains(err.Error(), "cloud.email") {
		t.Errorf("error should mention cloud.email, got: %v", err)
	}
	if !strings.Contains(err.Error(), "cloud.password") {
		t.Errorf("error should mention cloud.password, got: %v", err)
	}
}

func TestValidate_PollIntervalFloor(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cloud.Email = "a@b.c"
	cfg.Cloud.Password = "pw"
	cfg.API.Enabled = false
	cfg.Sync.PollInterval = 3

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject poll_interval below the floor")
	}
}

func TestValidate_APITokenRequired(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cloud.Email = "a@b.c"
	cfg.Cloud.Password = "pw"
	cfg.API.Enabled = true
	cfg.API.Token = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api.token") {
		t.Errorf("Validate() should require api.token when API is enabled, got: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DKNBRIDGE_CLOUD_EMAIL", "env@example.com")
	t.Setenv("DKNBRIDGE_CLOUD_PASSWORD", "env-secret")
	t.Setenv("DKNBRIDGE_API_TOKEN", "env-token")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Cloud.Email != "env@example.com" {
		t.Errorf("Cloud.Email = %q, want env override", cfg.Cloud.Email)
	}
	if cfg.Cloud.Password != "env-secret" {
		t.Errorf("Cloud.Password = %q, want env override", cfg.Cloud.Password)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want env override", cfg.API.Token)
	}
}
