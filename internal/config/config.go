package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Eitaa    EitaaConfig    `yaml:"eitaa"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Contacts ContactsConfig `yaml:"contacts"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
}

type BrowserConfig struct {
	Headless             bool   `yaml:"headless"`
	UserDataDir          string `yaml:"user_data_dir"`
	ChromePath           string `yaml:"chrome_path"`
	WindowWidth          int    `yaml:"window_width"`
	WindowHeight         int    `yaml:"window_height"`
	PageLoadTimeout      int    `yaml:"page_load_timeout"`
	LoginCheckTimeout    int    `yaml:"login_check_timeout"`
	LoginTimeout         int    `yaml:"login_timeout"`
	ScreenshotDir        string `yaml:"screenshot_dir"`
	DisableScreenshots   bool   `yaml:"disable_screenshots"`
	ShowAutomationMarker bool   `yaml:"show_automation_marker"`
}

type EitaaConfig struct {
	URL string `yaml:"url"`
}

type DispatchConfig struct {
	MinDelaySeconds   float64 `yaml:"min_delay_seconds"`
	MaxDelaySeconds   float64 `yaml:"max_delay_seconds"`
	MessagesPerMinute int     `yaml:"messages_per_minute"`
	FailedDMsPath     string  `yaml:"failed_dms_path"`
	OTPTimeoutSeconds int     `yaml:"otp_timeout_seconds"`
}

type ContactsConfig struct {
	MinDelaySeconds  float64 `yaml:"min_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
	KeystrokeDelayMS int     `yaml:"keystroke_delay_ms"`
	SettleSeconds    float64 `yaml:"settle_seconds"`
}

type StorageConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	RingSize   int    `yaml:"ring_size"`
}

type ServerConfig struct {
	Addr               string `yaml:"addr"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
}

// Load reads .env (if present), the YAML file at configPath (if present),
// applies EITAA_* environment overrides and fills in defaults.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("EITAA_CONFIG"); ok && strings.TrimSpace(v) != "" {
		configPath = v
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&config)
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var config Config
	_ = config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() error {
	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = "./chrome-data"
	}
	absPath, err := filepath.Abs(c.Browser.UserDataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve user data directory path: %w", err)
	}
	c.Browser.UserDataDir = absPath

	if c.Browser.ChromePath == "" {
		c.Browser.ChromePath = findChromePath()
	}
	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = 1280
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = 860
	}
	if c.Browser.PageLoadTimeout == 0 {
		c.Browser.PageLoadTimeout = 30
	}
	if c.Browser.LoginCheckTimeout == 0 {
		c.Browser.LoginCheckTimeout = 15
	}
	if c.Browser.LoginTimeout == 0 {
		c.Browser.LoginTimeout = 60
	}
	if c.Browser.ScreenshotDir == "" {
		c.Browser.ScreenshotDir = "./screenshots"
	}

	if c.Eitaa.URL == "" {
		c.Eitaa.URL = "https://web.eitaa.com/"
	}

	if c.Dispatch.MinDelaySeconds == 0 {
		c.Dispatch.MinDelaySeconds = 7
	}
	if c.Dispatch.MaxDelaySeconds == 0 {
		c.Dispatch.MaxDelaySeconds = 16
	}
	if c.Dispatch.FailedDMsPath == "" {
		c.Dispatch.FailedDMsPath = "failed_dms.txt"
	}

	if c.Contacts.MinDelaySeconds == 0 {
		c.Contacts.MinDelaySeconds = 2
	}
	if c.Contacts.MaxDelaySeconds == 0 {
		c.Contacts.MaxDelaySeconds = 4
	}
	if c.Contacts.KeystrokeDelayMS == 0 {
		c.Contacts.KeystrokeDelayMS = 100
	}
	if c.Contacts.SettleSeconds == 0 {
		c.Contacts.SettleSeconds = 2
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "eitaa_bot.db"
	}
	if c.Storage.BusyTimeoutMS == 0 {
		c.Storage.BusyTimeoutMS = 5000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.RingSize == 0 {
		c.Logging.RingSize = 300
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	return nil
}

// Validate checks value ranges after defaults have been applied.
func (c *Config) Validate() error {
	if c.Browser.PageLoadTimeout < 0 || c.Browser.LoginCheckTimeout < 0 || c.Browser.LoginTimeout < 0 {
		return fmt.Errorf("browser timeouts must be positive")
	}
	if c.Browser.LoginCheckTimeout >= c.Browser.LoginTimeout {
		return fmt.Errorf("login_check_timeout (%ds) must be shorter than login_timeout (%ds)",
			c.Browser.LoginCheckTimeout, c.Browser.LoginTimeout)
	}
	if c.Dispatch.MinDelaySeconds <= 0 || c.Dispatch.MinDelaySeconds > c.Dispatch.MaxDelaySeconds {
		return fmt.Errorf("dispatch delays must satisfy 0 < min <= max, got [%v, %v]",
			c.Dispatch.MinDelaySeconds, c.Dispatch.MaxDelaySeconds)
	}
	if c.Contacts.MinDelaySeconds <= 0 || c.Contacts.MinDelaySeconds > c.Contacts.MaxDelaySeconds {
		return fmt.Errorf("contacts delays must satisfy 0 < min <= max, got [%v, %v]",
			c.Contacts.MinDelaySeconds, c.Contacts.MaxDelaySeconds)
	}
	if c.Dispatch.MessagesPerMinute < 0 {
		return fmt.Errorf("messages_per_minute cannot be negative")
	}
	if c.Dispatch.OTPTimeoutSeconds < 0 {
		return fmt.Errorf("otp_timeout_seconds cannot be negative")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage path cannot be empty")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	return nil
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.Browser.PageLoadTimeout) * time.Second
}

func (c *Config) LoginCheckTimeout() time.Duration {
	return time.Duration(c.Browser.LoginCheckTimeout) * time.Second
}

func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Browser.LoginTimeout) * time.Second
}

// FailureScreenshotDir is where failed recipients are captured, or "" when
// screenshots are disabled.
func (c *Config) FailureScreenshotDir() string {
	if c.Browser.DisableScreenshots {
		return ""
	}
	return c.Browser.ScreenshotDir
}

func (c *Config) OTPTimeout() time.Duration {
	return time.Duration(c.Dispatch.OTPTimeoutSeconds) * time.Second
}

func applyEnv(c *Config) {
	if v, ok := os.LookupEnv("EITAA_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("EITAA_DB_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := os.LookupEnv("EITAA_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("EITAA_CHROME_PATH"); ok {
		c.Browser.ChromePath = v
	}
	if v, ok := os.LookupEnv("EITAA_HEADLESS"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Browser.Headless = b
		}
	}
}

// findChromePath attempts to locate Chrome executable on the system
func findChromePath() string {
	if runtime.GOOS == "windows" {
		paths := []string{
			"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
			"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
			os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		}

		for _, path := range paths {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	// Empty means chromedp picks its default lookup.
	return ""
}
