// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON file and environment
// variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr" env:"SERVER_ADDRESS"`

	// DataDir holds the key-value file and the default SQLite database.
	DataDir string `json:"data_dir" env:"DATA_DIR"`

	// DatabaseDriver selects the structured store: sqlite, postgres or none.
	DatabaseDriver string `json:"database_driver" env:"DATABASE_DRIVER"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_DSN"`

	// KVPath is the bbolt file backing the key-value store.
	KVPath string `json:"kv_path" env:"KV_PATH"`

	// ScheduleFile overrides the bundled legacy schedule file.
	ScheduleFile string `json:"schedule_file" env:"SCHEDULE_FILE"`

	// FlushInterval is how often the flat document is flushed.
	FlushInterval Duration `json:"flush_interval" env:"FLUSH_INTERVAL"`

	// LogCleanInterval is how often the structured audit log is trimmed.
	LogCleanInterval Duration `json:"log_clean_interval" env:"LOG_CLEAN_INTERVAL"`

	// QuotaBytes is the storage budget the quota warning is measured
	// against, e.g. "5MiB". Zero disables the warning.
	QuotaBytes ByteSize `json:"quota" env:"QUOTA"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// AppName names export downloads.
	AppName string `json:"app_name" env:"APP_NAME"`

	// TLSCert and TLSKey enable HTTPS when both are set. TLSClientCA, when
	// set, lets clients identify themselves with a certificate.
	TLSCert     string `json:"tls_cert" env:"TLS_CERT"`
	TLSKey      string `json:"tls_key" env:"TLS_KEY"`
	TLSClientCA string `json:"tls_client_ca" env:"TLS_CLIENT_CA"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		Addr:             "localhost:8080",
		DataDir:          "data",
		DatabaseDriver:   "sqlite",
		FlushInterval:    Duration{30 * time.Second},
		LogCleanInterval: Duration{time.Hour},
		QuotaBytes:       5 * humanize.MiByte,
		LogLevel:         "info",
		AppName:          "Estakaadi Planner",
		Config:           "config.json",
	}
}

// options holds the current configuration values.
var options = Default()

// init initializes command-line flags and sets default values.
func init() {
	options.Register(flag.CommandLine)
}

// Register binds o's fields to flags on fs, using o's current values as
// defaults.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.Addr, "a", o.Addr, "run on ip:port server")
	fs.StringVar(&o.DataDir, "data", o.DataDir, "data directory")
	fs.StringVar(&o.DatabaseDriver, "driver", o.DatabaseDriver, "structured store driver: sqlite, postgres or none")
	fs.StringVar(&o.DatabaseDSN, "d", o.DatabaseDSN, "db address")
	fs.StringVar(&o.KVPath, "kv", o.KVPath, "key-value store file")
	fs.StringVar(&o.ScheduleFile, "schedule", o.ScheduleFile, "legacy schedule file")
	fs.Var(&o.FlushInterval, "flush", "flat document flush interval")
	fs.Var(&o.LogCleanInterval, "log-clean", "audit log trim interval")
	fs.Var(&o.QuotaBytes, "quota", "storage quota, e.g. 5MiB")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.StringVar(&o.AppName, "app", o.AppName, "application name")
	fs.StringVar(&o.TLSCert, "tls-cert", o.TLSCert, "server certificate")
	fs.StringVar(&o.TLSKey, "tls-key", o.TLSKey, "server key")
	fs.StringVar(&o.TLSClientCA, "tls-client-ca", o.TLSClientCA, "CA for client certificates")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
}

// Parse parses the command-line flags, the config file and environment
// variables to set configuration values. It returns a pointer to the
// Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()
	if err := options.Resolve(); err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return options
}

// Resolve applies the config file and then the environment on top of the
// flag values, and fills in paths derived from DataDir.
func (o *Options) Resolve() error {
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			data, err := os.ReadFile(o.Config)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			if err := json.Unmarshal(data, o); err != nil {
				return fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.KVPath == "" {
		o.KVPath = filepath.Join(o.DataDir, "local.db")
	}
	if o.DatabaseDriver == "sqlite" && o.DatabaseDSN == "" {
		o.DatabaseDSN = filepath.Join(o.DataDir, "estakaadi.sqlite")
	}
	return nil
}

// Duration is a time.Duration read from flags, JSON and the environment
// in time.ParseDuration syntax.
type Duration struct {
	time.Duration
}

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	return d.Set(string(b))
}

// ByteSize is a byte count read in humanize syntax ("5MiB", "500 kB").
type ByteSize int64

// String implements flag.Value.
func (b *ByteSize) String() string {
	if b == nil {
		return "0 B"
	}
	return humanize.IBytes(uint64(*b))
}

// Set implements flag.Value.
func (b *ByteSize) Set(s string) error {
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return err
	}
	*b = ByteSize(v)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}
