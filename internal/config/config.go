// Package config loads run settings from TRD_* environment variables.
//
// Values are read once at startup, defaults are applied for unset values,
// and command-line flags may override any field before Validate is called.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all run settings.
type Config struct {
	Registry RegistryConfig
	Export   ExportConfig
	Mail     MailConfig
	Logging  LoggingConfig
	State    StateConfig
}

// RegistryConfig holds REDCap API settings.
type RegistryConfig struct {
	// URL is the project's API endpoint.
	URL string `env:"TRD_REDCAP_URL"`

	// Token is the project API token.
	Token string `env:"TRD_REDCAP_TOKEN"`

	// Timeout bounds each API call (default: 30s)
	Timeout time.Duration `env:"TRD_REDCAP_TIMEOUT" default:"30s"`
}

// ExportConfig locates the True Colours export.
type ExportConfig struct {
	// Archive is the path of the export .zip file.
	Archive string `env:"TRD_TRUE_COLOURS_ARCHIVE"`
}

// MailConfig holds summary email settings. Mail is sent only when To is set.
type MailConfig struct {
	To       string `env:"TRD_MAILTO_ADDRESS"`
	Secret   string `env:"TRD_MAILGUN_SECRET"`
	Domain   string `env:"TRD_MAILGUN_DOMAIN"`
	Username string `env:"TRD_MAILGUN_USERNAME"`

	// Host and Port address the SMTP relay (default: smtp.mailgun.org:587)
	Host string `env:"TRD_SMTP_HOST" default:"smtp.mailgun.org"`
	Port int    `env:"TRD_SMTP_PORT" default:"587"`
}

// Enabled reports whether a summary email should be sent.
func (m MailConfig) Enabled() bool {
	return m.To != ""
}

// From is the sender address.
func (m MailConfig) From() string {
	return fmt.Sprintf("TRD CLI <mailgun@%s>", m.Domain)
}

// Addr returns the relay address in host:port form.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Dir receives one log file per run (default: /var/log/trd_cli)
	Dir string `env:"TRD_LOG_DIR" default:"/var/log/trd_cli"`

	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"TRD_LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"TRD_LOG_FORMAT" default:"text"`
}

// StateConfig locates the run ledger.
type StateConfig struct {
	// DB is the SQLite database path. Empty disables the ledger.
	DB string `env:"TRD_STATE_DB"`
}

type requirement struct {
	value, env, flag string
}

// Validate checks the settings a run needs.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	required := []requirement{
		{c.Registry.URL, "TRD_REDCAP_URL", "--rc-url"},
		{c.Registry.Token, "TRD_REDCAP_TOKEN", "--rc-token"},
		{c.Export.Archive, "TRD_TRUE_COLOURS_ARCHIVE", "--tc-archive"},
	}
	if c.Mail.Enabled() {
		required = append(required,
			requirement{c.Mail.Secret, "TRD_MAILGUN_SECRET", "--mg-secret"},
			requirement{c.Mail.Domain, "TRD_MAILGUN_DOMAIN", "--mg-domain"},
			requirement{c.Mail.Username, "TRD_MAILGUN_USERNAME", "--mg-username"},
		)
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Sprintf("%s (%s) is required", r.env, r.flag))
		}
	}

	if c.Registry.Timeout <= 0 {
		errs = append(errs, "TRD_REDCAP_TIMEOUT must be positive")
	}
	if c.Mail.Enabled() && (c.Mail.Port <= 0 || c.Mail.Port > 65535) {
		errs = append(errs, fmt.Sprintf("TRD_SMTP_PORT (%d) must be 1-65535", c.Mail.Port))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("TRD_LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("TRD_LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a representation safe for logging. Secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Registry: {URL: %q, Token: %s, Timeout: %s}, ", c.Registry.URL, mask(c.Registry.Token), c.Registry.Timeout))
	b.WriteString(fmt.Sprintf("Export: {Archive: %q}, ", c.Export.Archive))
	b.WriteString(fmt.Sprintf("Mail: {To: %q, Domain: %q, Secret: %s, Relay: %q}, ", c.Mail.To, c.Mail.Domain, mask(c.Mail.Secret), c.Mail.Addr()))
	b.WriteString(fmt.Sprintf("Logging: {Dir: %q, Level: %q, Format: %q}, ", c.Logging.Dir, c.Logging.Level, c.Logging.Format))
	b.WriteString(fmt.Sprintf("State: {DB: %q}", c.State.DB))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
