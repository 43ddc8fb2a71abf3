// Package config provides configuration management for the Pipedrive connector.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config is the configuration contract between the CLI and the gateway/CRM
// clients.
//
// Config file location:
//   - Unix: ~/.config/onlyoffice/pipedrive-int
//   - Windows: %USERPROFILE%\.config\onlyoffice\pipedrive-int
//
// INI format:
//
//	[connector]
//	gateway_url = https://gateway.example.com
//	crm_url = https://company.pipedrive.com
//	client_secret = <app client secret>
//	user_id = 123
//	company_id = 456
//	language = en-US
//	dark = false
//
//	[connector.timeouts]
//	read_seconds = 5
//	upload_seconds = 120
type Config struct {
	// GatewayURL is the base URL of the document gateway.
	GatewayURL string `ini:"gateway_url"`

	// CRMURL is the base URL of the Pipedrive company instance.
	CRMURL string `ini:"crm_url"`

	// ClientSecret signs the app-context token when running outside the CRM
	// modal (CLI mode).
	ClientSecret string `ini:"client_secret"`

	// UserID and CompanyID identify the acting CRM user in the signed
	// app-context token.
	UserID    int64 `ini:"user_id"`
	CompanyID int64 `ini:"company_id"`

	// Language is the BCP 47 tag handed to the editor ("en-US" by default).
	Language string `ini:"language"`

	// Dark requests the dark editor theme.
	Dark bool `ini:"dark"`

	// Timeouts holds per-request deadlines.
	Timeouts TimeoutConfig
}

// TimeoutConfig holds per-request deadlines. Reads are short; uploads get a
// longer budget bounded by the 20 MB file size limit.
type TimeoutConfig struct {
	ReadSeconds   int `ini:"read_seconds"`
	UploadSeconds int `ini:"upload_seconds"`
}

// Read returns the read timeout as a duration.
func (t TimeoutConfig) Read() time.Duration {
	return time.Duration(t.ReadSeconds) * time.Second
}

// Upload returns the upload timeout as a duration.
func (t TimeoutConfig) Upload() time.Duration {
	return time.Duration(t.UploadSeconds) * time.Second
}

// Validation errors.
var (
	ErrMissingGatewayURL = errors.New("gateway_url is required")
	ErrMissingCRMURL     = errors.New("crm_url is required")
	ErrInvalidTimeout    = errors.New("timeouts must be positive")
)

// Default returns a Config with defaults applied and no endpoints set.
func Default() *Config {
	return &Config{
		Language: "en-US",
		Timeouts: TimeoutConfig{
			ReadSeconds:   5,
			UploadSeconds: 120,
		},
	}
}

// DefaultPath returns the default path for the config file.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "onlyoffice", "pipedrive-int"), nil
}

// Load reads configuration from the INI file at path (optional), then applies
// environment variable overrides. A .env file in the working directory is
// loaded first so local development setups work without exporting anything.
func Load(path string) (*Config, error) {
	// Ignore a missing .env; it is a convenience, not a requirement.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultPath()
		if err == nil {
			path = defaultPath
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.Section("connector").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [connector] section: %w", err)
	}
	if err := file.Section("connector.timeouts").MapTo(&cfg.Timeouts); err != nil {
		return fmt.Errorf("failed to map [connector.timeouts] section: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PIPEDRIVE_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("PIPEDRIVE_CRM_URL"); v != "" {
		cfg.CRMURL = v
	}
	if v := os.Getenv("PIPEDRIVE_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("PIPEDRIVE_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.UserID = id
		}
	}
	if v := os.Getenv("PIPEDRIVE_COMPANY_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CompanyID = id
		}
	}
	if v := os.Getenv("PIPEDRIVE_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("PIPEDRIVE_DARK"); v != "" {
		if dark, err := strconv.ParseBool(v); err == nil {
			cfg.Dark = dark
		}
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return ErrMissingGatewayURL
	}
	if c.CRMURL == "" {
		return ErrMissingCRMURL
	}
	if c.Timeouts.ReadSeconds <= 0 || c.Timeouts.UploadSeconds <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Save writes the configuration to the INI file at path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file := ini.Empty()
	if err := file.Section("connector").ReflectFrom(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := file.Section("connector.timeouts").ReflectFrom(&c.Timeouts); err != nil {
		return fmt.Errorf("failed to encode timeouts: %w", err)
	}

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}
