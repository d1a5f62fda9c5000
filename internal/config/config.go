// Package config loads the daemon's configuration from an INI file and the
// command line, the command line taking precedence.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the fully resolved configuration for one daemon run: the INI
// file's [xmlrpc_parser] section, with any command-line overrides applied.
type Config struct {
	DataDir       string `validate:"required"`
	XSLTPath      string `validate:"required"`
	DBServer      string `validate:"required"`
	DBPort        int    `validate:"required,gt=0,lte=65535"`
	Database      string `validate:"required"`
	DBUsername    string `validate:"required"`
	DBPassword    string
	ReportDir     string `validate:"required"`
	MaxReportSize int64  `validate:"required,gt=0"`

	// Command-line-only settings; these have no INI equivalent.
	Daemon   bool
	LogDest  string `validate:"required"`
	LogLevel string `validate:"required"`
	Threads  int    `validate:"required,gt=0"`
}

// Defaults returns the configuration's built-in defaults, the values used
// when neither the INI file nor the command line supplies a setting.
func Defaults() Config {
	return Config{
		DataDir:       "/var/lib/rteval",
		XSLTPath:      "/usr/share/rteval",
		DBServer:      "localhost",
		DBPort:        5432,
		Database:      "rteval",
		DBUsername:    "rtevparser",
		DBPassword:    "rtevaldb_parser",
		ReportDir:     "/var/lib/rteval/reports",
		MaxReportSize: 2097152,
		LogDest:       "stderr:",
		LogLevel:      "info",
		Threads:       4,
	}
}

var validate = validator.New()

// Validate reports whether cfg satisfies the field-level constraints every
// loaded configuration must meet, mirroring the way the teacher validates
// its own Config with go-playground/validator struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("op=config.Validate: %w", err)
	}
	return nil
}

// DSN builds the libpq-style connection string for pgx from the resolved
// database settings.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.DBServer, c.DBPort, c.Database, c.DBUsername, c.DBPassword)
}
