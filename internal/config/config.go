package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig `yaml:"server"`
	SMTP   SMTPConfig   `yaml:"smtp"`
	Mail   MailConfig   `yaml:"mail"`
	Admin  AdminConfig  `yaml:"admin"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SMTPConfig holds relay connection and pool settings. The relay is fixed at
// process start; nothing reads these per request.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Pool limits
	MaxConnections int `yaml:"max_connections"` // concurrent relay sessions
	MaxMessages    int `yaml:"max_messages"`    // sends per session before redial
	RateLimit      int `yaml:"rate_limit"`      // messages per second, all callers combined

	ConnectTimeoutSeconds   int `yaml:"connect_timeout_seconds"`
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
	IOTimeoutSeconds        int `yaml:"io_timeout_seconds"`
}

// MailConfig holds the operator identity used on outgoing mail
type MailConfig struct {
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// AdminConfig holds the shared secret gating diagnostic and stats operations
type AdminConfig struct {
	Key string `yaml:"key"`
}

// AuditConfig holds delivery log storage settings
type AuditConfig struct {
	LogDir string `yaml:"log_dir"`
}

// Addr returns the relay host:port
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectTimeout returns the dial timeout as a duration
func (c SMTPConfig) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the greeting/EHLO/AUTH timeout as a duration
func (c SMTPConfig) HandshakeTimeout() time.Duration {
	if c.HandshakeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// IOTimeout returns the message submission timeout as a duration
func (c SMTPConfig) IOTimeout() time.Duration {
	if c.IOTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IOTimeoutSeconds) * time.Second
}

// GetHost returns the bind host, defaulting to all interfaces
func (c ServerConfig) GetHost() string {
	if c.Host != "" {
		return c.Host
	}
	return "0.0.0.0"
}

// GetPort returns the listen port with a default
func (c ServerConfig) GetPort() int {
	if c.Port > 0 {
		return c.Port
	}
	return 5000
}

// Load reads configuration from a YAML file. A missing file is not an error;
// defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies .env plus environment
// variable overrides. This is the entrypoint used by cmd/server.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if present (ignore errors - file may not exist)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if username := os.Getenv("SMTP_USERNAME"); username != "" {
		cfg.SMTP.Username = username
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		cfg.SMTP.Password = password
	}
	if from := os.Getenv("MAIL_FROM"); from != "" {
		cfg.Mail.FromAddress = from
	}
	if name := os.Getenv("MAIL_FROM_NAME"); name != "" {
		cfg.Mail.FromName = name
	}
	if key := os.Getenv("ADMIN_KEY"); key != "" {
		cfg.Admin.Key = key
	}
	if dir := os.Getenv("EMAIL_LOG_DIR"); dir != "" {
		cfg.Audit.LogDir = dir
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Called once at startup;
// the struct is treated as immutable afterwards.
func (c *Config) Validate() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp port %d is out of range", c.SMTP.Port)
	}
	if c.Mail.FromAddress == "" {
		return fmt.Errorf("mail from_address is required")
	}
	if c.Admin.Key == "" {
		return fmt.Errorf("admin key is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 5000,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"https://picapicaa.netlify.app",
			},
		},
		SMTP: SMTPConfig{
			Host:                    "smtp.gmail.com",
			Port:                    587,
			MaxConnections:          5,
			MaxMessages:             100,
			RateLimit:               5,
			ConnectTimeoutSeconds:   10,
			HandshakeTimeoutSeconds: 10,
			IOTimeoutSeconds:        30,
		},
		Mail: MailConfig{
			FromName: "Picapica Photobooth",
		},
		Audit: AuditConfig{
			LogDir: "email_logs",
		},
	}
}
