package models

// SinchConfig holds the Conversation API credentials and routing.
// APISecret is only ever populated from the environment.
type SinchConfig struct {
	ProjectID string `json:"project_id"`
	AppID     string `json:"app_id"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"-"`
	Region    string `json:"region"` // us|eu
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type ServerConfig struct {
	Port          int    `json:"port"`
	WebhookSecret string `json:"-"`
}

// RetryConfig controls the exponential-backoff executor for outbound
// vendor calls.
type RetryConfig struct {
	MaxRetries       int `json:"max_retries"`
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
}

// PollingConfig controls the background conversation poller.
type PollingConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalSec int  `json:"interval_sec"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
	Environment  string  `json:"environment"`
}

// Config is the full module configuration, loaded from JSON with
// environment overrides applied afterwards.
type Config struct {
	Sinch         SinchConfig    `json:"sinch"`
	Database      DatabaseConfig `json:"database"`
	Server        ServerConfig   `json:"server"`
	Retry         RetryConfig    `json:"retry"`
	Polling       PollingConfig  `json:"polling"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retention_days"`
}
