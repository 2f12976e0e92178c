package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/security"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/validation"
)

var (
	ErrMissingProjectID = models.ConfigError{Message: "missing Sinch project ID"}
	ErrMissingAppID     = models.ConfigError{Message: "missing Sinch app ID"}
	ErrMissingAPIKey    = models.ConfigError{Message: "missing Sinch API key"}
	ErrMissingAPISecret = models.ConfigError{Message: "missing Sinch API secret (set SINCH_API_SECRET environment variable)"}
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path"}
	ErrInvalidRegion    = models.ConfigError{Message: "region must be \"us\" or \"eu\""}
)

// Load reads the JSON config file, applies environment overrides and
// validates the result. The API secret is never read from the file.
func Load(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Sinch.Region == "" {
		c.Sinch.Region = constants.DefaultRegion
	}
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultInitialBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Polling.IntervalSec <= 0 {
		c.Polling.IntervalSec = constants.DefaultPollIntervalSec
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("SINCH_PROJECT_ID"); v != "" {
		c.Sinch.ProjectID = v
	}
	if v := os.Getenv("SINCH_APP_ID"); v != "" {
		c.Sinch.AppID = v
	}
	if v := os.Getenv("SINCH_API_KEY"); v != "" {
		c.Sinch.APIKey = v
	}
	// The API secret is only ever taken from the environment
	c.Sinch.APISecret = os.Getenv("SINCH_API_SECRET")

	if v := os.Getenv("SINCH_REGION"); v != "" {
		c.Sinch.Region = v
	}
	if v := os.Getenv("OCE_SINCH_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("OCE_SINCH_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := os.Getenv("OCE_SINCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

func validate(c *models.Config) error {
	if c.Sinch.ProjectID == "" {
		return ErrMissingProjectID
	}
	if c.Sinch.AppID == "" {
		return ErrMissingAppID
	}
	if c.Sinch.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Sinch.APISecret == "" {
		return ErrMissingAPISecret
	}
	if c.Sinch.Region != "us" && c.Sinch.Region != "eu" {
		return ErrInvalidRegion
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := validation.ValidateRetentionDays(c.RetentionDays); err != nil {
		return err
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("OCE_SINCH_ENV") == "production"

	if isProduction {
		if c.Server.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set OCE_SINCH_WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Server.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set OCE_SINCH_WEBHOOK_SECRET to enable signature verification.\n")
	}

	return nil
}
