package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// QualificationConfig defines one entry of the qualification catalogue.
// Includes lists qualification IDs this one implies.
type QualificationConfig struct {
	ID           string   `yaml:"id" validate:"required"`
	Title        string   `yaml:"title" validate:"required"`
	Abbreviation string   `yaml:"abbreviation,omitempty"`
	Includes     []string `yaml:"includes,omitempty"`
}

// SeedSeries defines a recurring shift series the seed command expands into
// concrete shifts.
type SeedSeries struct {
	EventTitle string `yaml:"eventTitle" validate:"required"`
	EventType  string `yaml:"eventType,omitempty"`
	RRule      string `yaml:"rrule" validate:"required"`

	// StartClock is the local start time of each occurrence, e.g. "19:00".
	StartClock         string `yaml:"startClock" validate:"required"`
	DurationMinutes    int    `yaml:"durationMinutes" validate:"required,min=1"`
	MeetingLeadMinutes int    `yaml:"meetingLeadMinutes,omitempty" validate:"omitempty,min=0"`

	SignupFlowSlug string `yaml:"signupFlowSlug" validate:"required"`
	StructureSlug  string `yaml:"structureSlug" validate:"required"`

	MinimumAge                  *int     `yaml:"minimumAge,omitempty" validate:"omitempty,min=0"`
	MinimumNumberOfParticipants *int     `yaml:"minimumNumberOfParticipants,omitempty" validate:"omitempty,min=0"`
	MaximumNumberOfParticipants *int     `yaml:"maximumNumberOfParticipants,omitempty" validate:"omitempty,min=1"`
	RequiredQualificationIDs    []string `yaml:"requiredQualificationIDs,omitempty"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL          string `yaml:"databaseURL" validate:"required"`
	LockWaitMilliseconds int    `yaml:"lockWaitMilliseconds,omitempty" validate:"omitempty,min=1"`

	// GmailUserID is the Gmail account notification emails are sent as;
	// empty selects the authorized user.
	GmailUserID          string `yaml:"gmailUserID,omitempty"`
	NotificationsEnabled bool   `yaml:"notificationsEnabled,omitempty"`

	Qualifications []QualificationConfig `yaml:"qualifications,omitempty" validate:"dive"`
	SeedSeries     []SeedSeries          `yaml:"seedSeries,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from shift_signup_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration with an environment suffix
// For example, env="test" will look for "shift_signup_config.test.yaml"
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks rrule and clock syntax
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, series := range cfg.SeedSeries {
		if _, err := rrule.StrToRRule(series.RRule); err != nil {
			return fmt.Errorf("invalid rrule in seedSeries[%d]: %w", i, err)
		}
		if _, err := time.Parse("15:04", series.StartClock); err != nil {
			return fmt.Errorf("invalid startClock in seedSeries[%d]: %w", i, err)
		}
	}

	// Qualification includes must refer to catalogue entries
	known := make(map[string]bool, len(cfg.Qualifications))
	for _, q := range cfg.Qualifications {
		known[q.ID] = true
	}
	for i, q := range cfg.Qualifications {
		for _, inc := range q.Includes {
			if !known[inc] {
				return fmt.Errorf("qualifications[%d] includes unknown qualification %q", i, inc)
			}
		}
	}

	return nil
}

// LockWait returns the configured lock wait bound, or zero for the default.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.LockWaitMilliseconds) * time.Millisecond
}

// findConfigFile searches for shift_signup_config.yaml in current directory and home directory
// If env is provided, it adds it as an extension (e.g., "shift_signup_config.test.yaml")
func findConfigFile(env string) (string, error) {
	configFileName := "shift_signup_config.yaml"
	if env != "" {
		configFileName = "shift_signup_config." + env + ".yaml"
	}

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
