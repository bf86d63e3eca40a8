package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cm, err := NewConfigManager(writeConfig(t, "general_params:\n  self_name: Nadia\n"))
	if err != nil {
		t.Fatal(err)
	}
	c := cm.GetConfig()

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := c.HttpServerParams.GetAddress(); got != "0.0.0.0:8080" {
		t.Errorf("address = %q", got)
	}
	if c.StorageParams.Driver != "memory" || c.MediaParams.Driver != "inline" {
		t.Errorf("drivers = %q, %q", c.StorageParams.Driver, c.MediaParams.Driver)
	}
	if c.LiveParams.FailureGrace != 3*time.Second || c.LiveParams.FrameSize != 4096 {
		t.Errorf("live params = %+v", c.LiveParams)
	}
	size, err := c.MediaParams.MaxAttachmentBytes()
	if err != nil || size != 25_000_000 {
		t.Errorf("MaxAttachmentBytes() = %d, %v", size, err)
	}
	if c.GeneralParams.SelfName != "Nadia" {
		t.Errorf("self_name = %q", c.GeneralParams.SelfName)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("APP_LIVE_PARAMS_API_KEY", "secret")
	t.Setenv("APP_STORAGE_PARAMS_DRIVER", "redis")

	cm, err := NewConfigManager(writeConfig(t, "storage_params:\n  redis_addr: localhost:6379\n"))
	if err != nil {
		t.Fatal(err)
	}
	c := cm.GetConfig()
	if c.LiveParams.APIKey != "secret" || c.StorageParams.Driver != "redis" {
		t.Errorf("env not applied: api_key=%q driver=%q", c.LiveParams.APIKey, c.StorageParams.Driver)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GeneralParams:    GeneralParams{Env: "dev", SelfID: "me"},
			HttpServerParams: HttpServerParams{Address: "localhost", Port: "8080"},
			StorageParams:    StorageParams{Driver: "memory"},
			MediaParams:      MediaParams{Driver: "inline", MaxAttachmentSize: "10 MiB"},
			LiveParams:       LiveParams{Endpoint: "wss://example.test/live"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad env", func(c *Config) { c.GeneralParams.Env = "staging" }, "env parameter is invalid"},
		{"missing self id", func(c *Config) { c.GeneralParams.SelfID = "" }, "self_id"},
		{"pebble without path", func(c *Config) { c.StorageParams.Driver = "pebble" }, "path is required"},
		{"unknown storage", func(c *Config) { c.StorageParams.Driver = "sqlite" }, "storage driver is invalid"},
		{"postgres without host", func(c *Config) { c.StorageParams.Driver = "postgres" }, "db_host"},
		{"bad size", func(c *Config) { c.MediaParams.MaxAttachmentSize = "lots" }, "max_attachment_size"},
		{"s3 without endpoint", func(c *Config) { c.MediaParams.Driver = "s3" }, "S3 endpoint"},
		{"no live endpoint", func(c *Config) { c.LiveParams.Endpoint = "" }, "live endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	s := StorageParams{Username: "u", Password: "p", Host: "db", Port: 5432, Name: "bijoy", Timeout: 5}
	want := "postgres://u:p@db:5432/bijoy?connect_timeout=5&sslmode=disable"
	if diff := cmp.Diff(want, s.GetDSN()); diff != "" {
		t.Errorf("GetDSN() mismatch (-want +got):\n%s", diff)
	}
}
