package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. It is built once by
// LoadConfig and handed to collaborators by value or pointer; nothing mutates
// it after loading.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Search    SearchConfig    `yaml:"search"`
	Recaptcha RecaptchaConfig `yaml:"recaptcha"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrowserConfig describes which browser to drive and where to point it.
type BrowserConfig struct {
	Name            string        `yaml:"name" validate:"required"`
	Protocol        string        `yaml:"protocol" validate:"required"`
	URL             string        `yaml:"url" validate:"required"`
	Path            string        `yaml:"path"`
	Headless        bool          `yaml:"headless"`
	Stealth         bool          `yaml:"stealth"`
	UserAgent       string        `yaml:"user_agent"`
	RemoteURL       string        `yaml:"remote_url" validate:"omitempty,url"`
	ChromeBin       string        `yaml:"chrome_bin"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" validate:"gt=0"`
}

// Website returns the start page assembled from protocol, host and path.
func (b BrowserConfig) Website() string {
	return b.Protocol + b.URL + b.Path
}

// SearchConfig drives the search page object.
type SearchConfig struct {
	Query       string        `yaml:"query" validate:"required"`
	BoxSelector string        `yaml:"box_selector" validate:"required"`
	Pause       time.Duration `yaml:"pause" validate:"gte=0"`

	// ResultsTimeout bounds the wait for the results page after submitting.
	ResultsTimeout time.Duration `yaml:"results_timeout" validate:"gt=0"`
}

// RecaptchaConfig holds the challenge solver settings. MinScore is kept as the
// raw string so that an unparsable value can be reported and skipped at solve
// time instead of failing the whole load.
type RecaptchaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	Enterprise     bool          `yaml:"enterprise"`
	Proxy          string        `yaml:"proxy"`
	Version        string        `yaml:"version" validate:"oneof=v2 v3"`
	Action         string        `yaml:"action"`
	MinScore       string        `yaml:"min_score"`
	APIURL         string        `yaml:"api_url" validate:"required,url"`
	PollInterval   time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxWait        time.Duration `yaml:"max_wait" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	DomainsFile    string        `yaml:"domains_file"`
}

// FetchConfig throttles plain HTTP page fetches used for static detection.
// RateLimit is in requests per minute per domain.
type FetchConfig struct {
	RateLimit    int           `yaml:"rate_limit" validate:"gt=0"`
	Burst        int           `yaml:"burst" validate:"gt=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxFailures  int           `yaml:"max_failures" validate:"gt=0"`
	ResetTimeout time.Duration `yaml:"reset_timeout" validate:"gt=0"`
}

// LoggingConfig selects level and output of the logging system.
type LoggingConfig struct {
	Level     string `yaml:"level" validate:"oneof=debug info warn warning error fatal"`
	Format    string `yaml:"format" validate:"oneof=json text"`
	Colorized bool   `yaml:"colorized"`
	File      string `yaml:"file"`
}

// Default returns a Config populated with defaults only.
func Default() Config {
	var c Config

	c.Browser.Name = "chrome"
	c.Browser.Protocol = "https://"
	c.Browser.URL = "www.google.com"
	c.Browser.Path = "/"
	c.Browser.Headless = true
	c.Browser.Stealth = true
	c.Browser.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	c.Browser.PageLoadTimeout = 30 * time.Second

	c.Search.Query = "java"
	c.Search.BoxSelector = "#APjFqb"
	c.Search.Pause = 3 * time.Second
	c.Search.ResultsTimeout = 30 * time.Second

	c.Recaptcha.Version = "v2"
	c.Recaptcha.APIURL = "https://2captcha.com"
	c.Recaptcha.PollInterval = 5 * time.Second
	c.Recaptcha.MaxWait = 120 * time.Second
	c.Recaptcha.RequestTimeout = 30 * time.Second

	c.Fetch.RateLimit = 30
	c.Fetch.Burst = 5
	c.Fetch.Timeout = 30 * time.Second
	c.Fetch.MaxFailures = 5
	c.Fetch.ResetTimeout = 30 * time.Second

	c.Logging.Level = "info"
	c.Logging.Format = "text"

	return c
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	return re2.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[1:]); val != "" {
			return val
		}
		return match
	})
}

// LoadConfig loads configuration from .env, an optional YAML file and the
// process environment, in that order of precedence (environment wins).
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	config.loadFromEnv()
	config.Recaptcha.Version = normalizeVersion(config.Recaptcha.Version)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the struct tags on every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	setString(&c.Browser.Name, "BROWSER_NAME")
	setString(&c.Browser.Protocol, "BROWSER_PROTOCOL")
	setString(&c.Browser.URL, "BROWSER_URL")
	setString(&c.Browser.Path, "BROWSER_PATH")
	setBool(&c.Browser.Headless, "BROWSER_HEADLESS")
	setBool(&c.Browser.Stealth, "BROWSER_STEALTH")
	setString(&c.Browser.UserAgent, "BROWSER_USER_AGENT")
	setString(&c.Browser.RemoteURL, "SELENIUM_REMOTE_URL")
	setDuration(&c.Browser.PageLoadTimeout, "BROWSER_PAGE_LOAD_TIMEOUT")

	// A dedicated chrome binary means a container image, which has no display.
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		c.Browser.ChromeBin = chromeBin
		c.Browser.Headless = true
	}

	setString(&c.Search.Query, "SEARCH_QUERY")
	setString(&c.Search.BoxSelector, "SEARCH_BOX_SELECTOR")
	setDuration(&c.Search.Pause, "SEARCH_PAUSE")
	setDuration(&c.Search.ResultsTimeout, "SEARCH_RESULTS_TIMEOUT")

	setBool(&c.Recaptcha.Enabled, "ENABLE_RECAPTCHA_SOLVER")
	setString(&c.Recaptcha.APIKey, "RECAPTCHA_API_KEY")
	setBool(&c.Recaptcha.Enterprise, "RECAPTCHA_ENTERPRISE")
	setString(&c.Recaptcha.Proxy, "RECAPTCHA_PROXY")
	setString(&c.Recaptcha.Version, "RECAPTCHA_VERSION")
	setString(&c.Recaptcha.Action, "RECAPTCHA_ACTION")
	if minScore, ok := os.LookupEnv("RECAPTCHA_MIN_SCORE"); ok {
		c.Recaptcha.MinScore = minScore
	}
	setString(&c.Recaptcha.APIURL, "RECAPTCHA_API_URL")
	setDuration(&c.Recaptcha.PollInterval, "RECAPTCHA_POLL_INTERVAL")
	setDuration(&c.Recaptcha.MaxWait, "RECAPTCHA_MAX_WAIT")
	setDuration(&c.Recaptcha.RequestTimeout, "RECAPTCHA_REQUEST_TIMEOUT")
	setString(&c.Recaptcha.DomainsFile, "RECAPTCHA_DOMAINS_FILE")
	if c.Recaptcha.DomainsFile == "" {
		if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
			c.Recaptcha.DomainsFile = fmt.Sprintf("%s/captcha-domains.txt", dataDir)
		}
	}

	setInt(&c.Fetch.RateLimit, "FETCH_RATE_LIMIT")
	setDuration(&c.Fetch.Timeout, "FETCH_TIMEOUT")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.File, "LOG_FILE")
}

// ParseFlag reports whether an environment-style flag value means "on".
func ParseFlag(value string) bool {
	switch value {
	case "1", "true", "True", "yes":
		return true
	}
	return false
}

func normalizeVersion(v string) string {
	if strings.ToLower(strings.TrimSpace(v)) == "v3" {
		return "v3"
	}
	return "v2"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = ParseFlag(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
