// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/platform-engineering-labs/formae/pkg/model"
)

// DefaultCDKQualifier is the bootstrap qualifier used to derive the execution role.
const DefaultCDKQualifier = "hnb659fds"

// Config holds Security Lake target configuration.
// Note: credentials are never stored in the target config; they always come
// from the AWS default credential chain (env, shared config, instance role).
type Config struct {
	// Stored in target config (non-sensitive)
	Region                  string `json:"region"`
	Account                 string `json:"account,omitempty"`
	Endpoint                string `json:"endpoint,omitempty"` // optional service endpoint override
	RoleArn                 string `json:"roleArn,omitempty"`  // execution role; derived when empty
	CDKQualifier            string `json:"cdkQualifier,omitempty"`
	MetaStoreManagerRoleArn string `json:"metaStoreManagerRoleArn,omitempty"`
	AssumeRole              bool   `json:"assumeRole,omitempty"`

	// Read from environment variables only (never stored)
	RoleExternalID string `json:"-"` // From SECURITYLAKE_ROLE_EXTERNAL_ID

	Settings Settings `json:"settings"`
}

// Settings tunes convergence. Durations are Go duration strings in JSON.
type Settings struct {
	TotalTimeout         Duration `json:"totalTimeout" validate:"gt=0"`
	PollInterval         Duration `json:"pollInterval" validate:"gt=0"`
	RetryAttempts        int      `json:"retryAttempts" validate:"gte=1,lte=10"`
	DefaultSourceVersion string   `json:"defaultSourceVersion" validate:"required"`
}

// DefaultSettings returns the convergence defaults: 60m timeout, 30s polling,
// three attempts per control-plane call, source version 2.0.
func DefaultSettings() Settings {
	return Settings{
		TotalTimeout:         Duration(60 * time.Minute),
		PollInterval:         Duration(30 * time.Second),
		RetryAttempts:        3,
		DefaultSourceVersion: "2.0",
	}
}

var validate = validator.New()

// Validate checks the settings ranges.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.PollInterval > s.TotalTimeout {
		return fmt.Errorf("invalid settings: poll interval %s exceeds total timeout %s",
			s.PollInterval, s.TotalTimeout)
	}
	return nil
}

// Duration is a time.Duration that marshals as a duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// FromTarget extracts Security Lake configuration from a Target
func FromTarget(target *model.Target) (*Config, error) {
	if target == nil {
		return nil, fmt.Errorf("target is nil")
	}
	return FromTargetConfig(target.Config)
}

// FromTargetConfig extracts Security Lake configuration from a TargetConfig JSON.
// Missing values fall back to environment variables, then to defaults.
func FromTargetConfig(targetConfig json.RawMessage) (*Config, error) {
	cfg := Config{Settings: DefaultSettings()}

	// Read non-sensitive config from target
	if len(targetConfig) > 0 {
		if err := json.Unmarshal(targetConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target config: %w", err)
		}
	}

	if cfg.Region == "" {
		cfg.Region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	if cfg.Account == "" {
		cfg.Account = os.Getenv("SECURITYLAKE_ACCOUNT_ID")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("SECURITYLAKE_ENDPOINT")
	}
	if cfg.RoleArn == "" {
		cfg.RoleArn = os.Getenv("SECURITYLAKE_ROLE_ARN")
	}
	if cfg.CDKQualifier == "" {
		cfg.CDKQualifier = DefaultCDKQualifier
	}

	// Secrets are ALWAYS read from environment variables (never stored)
	cfg.RoleExternalID = os.Getenv("SECURITYLAKE_ROLE_EXTERNAL_ID")

	if err := applySettingsEnv(&cfg.Settings); err != nil {
		return nil, err
	}

	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required (set AWS_REGION or provide in target config)")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ExecutionRoleArn returns the configured role or derives the bootstrap
// execution role from account, region and qualifier. Returns "" when the
// account is not yet known.
func (c *Config) ExecutionRoleArn() string {
	if c.RoleArn != "" {
		return c.RoleArn
	}
	if c.Account == "" {
		return ""
	}
	qualifier := c.CDKQualifier
	if qualifier == "" {
		qualifier = DefaultCDKQualifier
	}
	return fmt.Sprintf("arn:%s:iam::%s:role/cdk-%s-cfn-exec-role-%s-%s",
		Partition(c.Region), c.Account, qualifier, c.Account, c.Region)
}

// Partition returns the AWS partition for a region
func Partition(region string) string {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov"
	default:
		return "aws"
	}
}

// GlueDatabaseName returns the Glue database Security Lake creates for a region.
func GlueDatabaseName(region string) string {
	return "amazon_security_lake_glue_db_" + strings.ReplaceAll(region, "-", "_")
}

func applySettingsEnv(s *Settings) error {
	if v := os.Getenv("SECURITYLAKE_TOTAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SECURITYLAKE_TOTAL_TIMEOUT: %w", err)
		}
		s.TotalTimeout = Duration(d)
	}
	if v := os.Getenv("SECURITYLAKE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SECURITYLAKE_POLL_INTERVAL: %w", err)
		}
		s.PollInterval = Duration(d)
	}
	if v := os.Getenv("SECURITYLAKE_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECURITYLAKE_RETRY_ATTEMPTS: %w", err)
		}
		s.RetryAttempts = n
	}
	if v := os.Getenv("SECURITYLAKE_DEFAULT_SOURCE_VERSION"); v != "" {
		s.DefaultSourceVersion = v
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
