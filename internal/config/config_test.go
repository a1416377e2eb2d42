package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mles.toml")
	body := `
channel = "lobby"
uid = "alice"
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server != DefaultServer {
		t.Fatalf("server default not applied: %q", cfg.Server)
	}
	if cfg.LogLevel != "NOTICE" {
		t.Fatalf("log level default not applied: %q", cfg.LogLevel)
	}
	if cfg.Channel != "lobby" || cfg.UID != "alice" {
		t.Fatalf("fields not read: %+v", cfg)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mles.toml")
	if err := os.WriteFile(path, []byte("channel = [unterminated"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("parsed malformed config")
	}
}

func TestValidateExclusiveModes(t *testing.T) {
	cfg := Default()
	cfg.ProxyServer = "wss://other.example"
	cfg.MQTTBroker = "mqtt://broker.example"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("accepted both bridge modes at once")
	}
	cfg.MQTTBroker = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}
