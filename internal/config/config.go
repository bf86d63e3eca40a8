package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams    GeneralParams
	HttpServerParams HttpServerParams
	StorageParams    StorageParams
	MediaParams      MediaParams
	S3Params         S3Params
	LiveParams       LiveParams
	WSParams         WSParams
}

type GeneralParams struct {
	Env      string
	LogLevel string
	SelfID   string
	SelfName string
}

type HttpServerParams struct {
	Address string
	Port    string
	// Per-request budget for handlers that dial out (uploads, call setup)
	RequestTimeout time.Duration
}

type StorageParams struct {
	Driver    string
	Path      string
	RedisAddr string
	Namespace string
	Username  string
	Password  string
	Name      string
	Port      int
	Host      string
	Timeout   int
}

type MediaParams struct {
	Driver string
	// Human readable, e.g. "25 MB"
	MaxAttachmentSize string
	PresignExpiry     time.Duration
}

type S3Params struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

type LiveParams struct {
	Endpoint     string
	APIKey       string
	Model        string
	Voice        string
	FrameSize    int
	FailureGrace time.Duration
}

type WSParams struct {
	MessageRate    float64
	MessageBurst   int
	OriginPatterns []string
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}
	cm.loadConfig()

	return cm, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("general_params.self_id", "me")
	v.SetDefault("http_server_params.http_server_address", "0.0.0.0")
	v.SetDefault("http_server_params.http_server_port", "8080")
	v.SetDefault("http_server_params.request_timeout", "30s")
	v.SetDefault("storage_params.driver", "memory")
	v.SetDefault("storage_params.namespace", "bijoy")
	v.SetDefault("storage_params.db_port", 5432)
	v.SetDefault("storage_params.db_timeout", 5)
	v.SetDefault("media_params.driver", "inline")
	v.SetDefault("media_params.max_attachment_size", "25 MB")
	v.SetDefault("media_params.presign_expiry", "24h")
	v.SetDefault("live_params.endpoint",
		"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent")
	v.SetDefault("live_params.frame_size", 4096)
	v.SetDefault("live_params.failure_grace", "3s")
	v.SetDefault("ws_params.message_rate", 10)
	v.SetDefault("ws_params.message_burst", 20)
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:      cm.v.GetString("general_params.env"),
			LogLevel: cm.v.GetString("general_params.log_level"),
			SelfID:   cm.v.GetString("general_params.self_id"),
			SelfName: cm.v.GetString("general_params.self_name"),
		},
		HttpServerParams: HttpServerParams{
			Address:        cm.v.GetString("http_server_params.http_server_address"),
			Port:           cm.v.GetString("http_server_params.http_server_port"),
			RequestTimeout: cm.v.GetDuration("http_server_params.request_timeout"),
		},
		StorageParams: StorageParams{
			Driver:    cm.v.GetString("storage_params.driver"),
			Path:      cm.v.GetString("storage_params.path"),
			RedisAddr: cm.v.GetString("storage_params.redis_addr"),
			Namespace: cm.v.GetString("storage_params.namespace"),
			Username:  cm.v.GetString("storage_params.db_username"),
			Password:  cm.v.GetString("storage_params.db_password"),
			Name:      cm.v.GetString("storage_params.db_name"),
			Port:      cm.v.GetInt("storage_params.db_port"),
			Host:      cm.v.GetString("storage_params.db_host"),
			Timeout:   cm.v.GetInt("storage_params.db_timeout"),
		},
		MediaParams: MediaParams{
			Driver:            cm.v.GetString("media_params.driver"),
			MaxAttachmentSize: cm.v.GetString("media_params.max_attachment_size"),
			PresignExpiry:     cm.v.GetDuration("media_params.presign_expiry"),
		},
		S3Params: S3Params{
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
		LiveParams: LiveParams{
			Endpoint:     cm.v.GetString("live_params.endpoint"),
			APIKey:       cm.v.GetString("live_params.api_key"),
			Model:        cm.v.GetString("live_params.model"),
			Voice:        cm.v.GetString("live_params.voice"),
			FrameSize:    cm.v.GetInt("live_params.frame_size"),
			FailureGrace: cm.v.GetDuration("live_params.failure_grace"),
		},
		WSParams: WSParams{
			MessageRate:    cm.v.GetFloat64("ws_params.message_rate"),
			MessageBurst:   cm.v.GetInt("ws_params.message_burst"),
			OriginPatterns: cm.v.GetStringSlice("ws_params.origin_patterns"),
		},
	}
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to the postgres blob store
func (s *StorageParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		s.Username,
		s.Password,
		s.Host,
		s.Port,
		s.Name,
		s.Timeout,
	)
}

func (h *HttpServerParams) GetAddress() string {
	return fmt.Sprintf(
		"%s:%s",
		h.Address,
		h.Port,
	)
}

// MaxAttachmentBytes parses the human readable attachment limit
func (m *MediaParams) MaxAttachmentBytes() (int64, error) {
	n, err := humanize.ParseBytes(m.MaxAttachmentSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_attachment_size %q: %w", m.MaxAttachmentSize, err)
	}
	return int64(n), nil
}

func (c *Config) Validate() error {
	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}
	if c.GeneralParams.SelfID == "" {
		return fmt.Errorf("parameter self_id is required")
	}

	// Checking http server parameters
	if c.HttpServerParams.Address == "" {
		return fmt.Errorf("http server address is required")
	}
	if c.HttpServerParams.Port == "" {
		return fmt.Errorf("http server port is required")
	}

	// Checking storage params
	switch c.StorageParams.Driver {
	case "memory":
	case "pebble":
		if c.StorageParams.Path == "" {
			return fmt.Errorf("storage: path is required for pebble")
		}
	case "redis":
		if c.StorageParams.RedisAddr == "" {
			return fmt.Errorf("storage: redis_addr is required for redis")
		}
	case "postgres":
		if c.StorageParams.Host == "" {
			return fmt.Errorf("storage: db_host is required for postgres")
		}
		if c.StorageParams.Username == "" {
			return fmt.Errorf("storage: db_username is required for postgres")
		}
		if c.StorageParams.Name == "" {
			return fmt.Errorf("storage: db_name is required for postgres")
		}
	default:
		return fmt.Errorf("storage driver is invalid: %s. try memory/pebble/redis/postgres instead", c.StorageParams.Driver)
	}

	// Checking media params
	size, err := c.MediaParams.MaxAttachmentBytes()
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("max_attachment_size must be positive")
	}
	switch c.MediaParams.Driver {
	case "inline":
	case "s3":
		if c.S3Params.Endpoint == "" {
			return fmt.Errorf("S3 endpoint is required")
		}
		if c.S3Params.AccessKeyID == "" {
			return fmt.Errorf("S3 access_key id is required")
		}
		if c.S3Params.SecretAccessKey == "" {
			return fmt.Errorf("S3 secret_access_key is required")
		}
		if c.S3Params.BucketName == "" {
			return fmt.Errorf("S3 bucket name is required")
		}
	default:
		return fmt.Errorf("media driver is invalid: %s. try inline/s3 instead", c.MediaParams.Driver)
	}

	// Checking live params
	if c.LiveParams.Endpoint == "" {
		return fmt.Errorf("live endpoint is required")
	}
	if c.LiveParams.FrameSize < 0 {
		return fmt.Errorf("live frame_size must not be negative")
	}

	return nil
}
