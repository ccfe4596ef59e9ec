package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps every configuration validation failure. Validation errors
// are the only fatal errors in the pipeline: they abort before any phase runs.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Logger LoggerConfig `mapstructure:"logger"`
	Scan   ScanConfig   `mapstructure:"scan"`
	Tools  ToolsConfig  `mapstructure:"tools"`
	Report ReportConfig `mapstructure:"report"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type ScanConfig struct {
	Target       string        `mapstructure:"target"`
	Workers      int           `mapstructure:"workers"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	FullRange    bool          `mapstructure:"full_range"`
	Permutations bool          `mapstructure:"permutations"`
	ProbeHTTP    bool          `mapstructure:"probe_http"`
	WordlistPath string        `mapstructure:"wordlist_path"`
	ProfilePath  string        `mapstructure:"profile_path"`
	Resolvers    []string      `mapstructure:"resolvers"`

	SkipSubdomains  bool `mapstructure:"skip_subdomains"`
	SkipPorts       bool `mapstructure:"skip_ports"`
	SkipTech        bool `mapstructure:"skip_tech"`
	SkipScreenshots bool `mapstructure:"skip_screenshots"`
}

type ToolsConfig struct {
	Nmap    NmapConfig    `mapstructure:"nmap"`
	Browser BrowserConfig `mapstructure:"browser"`
}

type NmapConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BinaryPath string        `mapstructure:"binary_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type BrowserConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	WaitForLoad    time.Duration `mapstructure:"wait_for_load"`
}

type ReportConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	ScreenshotDir string `mapstructure:"screenshot_dir"`
}

// Validate checks everything that must hold before the pipeline starts. Any
// failure here is fatal; per-task network failures later are not.
func (c *Config) Validate() error {
	target := strings.TrimSpace(c.Scan.Target)
	if target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalid)
	}
	if !ValidHostname(target) {
		return fmt.Errorf("%w: target %q is not a valid hostname", ErrInvalid, target)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalid, c.Scan.Workers)
	}
	if c.Scan.TaskTimeout <= 0 {
		return fmt.Errorf("%w: task timeout must be positive, got %s", ErrInvalid, c.Scan.TaskTimeout)
	}
	if c.Scan.RunTimeout < 0 {
		return fmt.Errorf("%w: run timeout must not be negative, got %s", ErrInvalid, c.Scan.RunTimeout)
	}
	if c.Scan.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative, got %d", ErrInvalid, c.Scan.RateLimit)
	}
	return nil
}

// ValidHostname reports whether s is a syntactically valid DNS hostname
// (RFC 1123 labels, no scheme, no port).
func ValidHostname(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	s = strings.TrimSuffix(s, ".")
	for _, label := range strings.Split(s, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}

// NormalizeTarget strips a scheme and trailing slashes from user input so
// "https://example.com/" and "example.com" configure the same run.
func NormalizeTarget(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Default returns the baseline configuration; cmd/root.go overrides fields
// from flags and environment variables via viper.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stdout"},
		},
		Scan: ScanConfig{
			Workers:     10,
			TaskTimeout: 3 * time.Second,
			RunTimeout:  30 * time.Minute,
			RateLimit:   100,
			Resolvers: []string{
				"8.8.8.8:53",
				"1.1.1.1:53",
				"9.9.9.9:53",
			},
		},
		Tools: ToolsConfig{
			Nmap: NmapConfig{
				Enabled:    false,
				BinaryPath: "nmap",
				Timeout:    10 * time.Minute,
			},
			Browser: BrowserConfig{
				Timeout:        30 * time.Second,
				ViewportWidth:  1920,
				ViewportHeight: 1080,
				WaitForLoad:    2 * time.Second,
			},
		},
		Report: ReportConfig{
			OutputDir:     "output",
			ScreenshotDir: "screenshots",
		},
	}
}
