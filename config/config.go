package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds scraper configuration.
type Config struct {
	SitesFile        string
	Concurrency      int
	Timeout          time.Duration
	UserAgent        string
	NumberFormat     string // us or eu
	RespectRobotsTxt bool
	MatcherCacheSize int

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	MailTo       []string
	TemplatePath string

	OutputFile     string
	OutputFormat   string // csv, json, dual, or empty to skip
	MetricsAddr    string
	PushgatewayURL string
	Schedule       string
	DryRun         bool
	Verbose        bool
}

// DefaultConfig returns defaults matching a single daily run.
func DefaultConfig() *Config {
	return &Config{
		SitesFile:        "sites.json",
		Concurrency:      4,
		Timeout:          30 * time.Second,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/99.0.4844.74 Safari/537.36",
		NumberFormat:     "us",
		RespectRobotsTxt: false,
		MatcherCacheSize: 256,
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "prices",
		MongoCollection:  "vendors",
		SMTPPort:         587,
		OutputFormat:     "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SitesFile) == "" {
		return fmt.Errorf("sites file cannot be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	switch strings.ToLower(c.NumberFormat) {
	case "us", "eu":
	default:
		return fmt.Errorf("number format must be us or eu")
	}

	if !c.DryRun {
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI cannot be empty")
		}
		if _, err := url.Parse(c.MongoURI); err != nil {
			return fmt.Errorf("invalid mongo URI: %w", err)
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection cannot be empty")
		}
	}

	if c.SMTPHost != "" {
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("smtp port must be between 1 and 65535")
		}
		if c.MailFrom == "" {
			return fmt.Errorf("mail from address cannot be empty when smtp host is set")
		}
		if len(c.MailTo) == 0 {
			return fmt.Errorf("mail to addresses cannot be empty when smtp host is set")
		}
	}

	switch c.OutputFormat {
	case "", "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.OutputFormat != "" && c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty when an output format is set")
	}

	if c.PushgatewayURL != "" {
		parsed, err := url.Parse(c.PushgatewayURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("invalid pushgateway URL %q", c.PushgatewayURL)
		}
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
	}

	return nil
}

// EnvString returns the value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// EnvInt returns the integer value of key when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool returns the boolean value of key when it is set.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// SplitList splits a comma separated list and drops empty entries.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
