// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Tokens           []string        `mapstructure:"tokens"`
	FetchConcurrency int             `mapstructure:"fetch_concurrency"`
	OutputDir        string          `mapstructure:"output_dir"`
	MetricsFile      string          `mapstructure:"metrics_file"`
	DebugLogging     bool            `mapstructure:"debug_logging"`
	Nansen           NansenConfig    `mapstructure:"nansen"`
	Retry            RetryConfig     `mapstructure:"retry"`
	Typefully        TypefullyConfig `mapstructure:"typefully"`
	Thread           ThreadConfig    `mapstructure:"thread"`
}

type NansenConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	URL     string        `mapstructure:"url"`
	PerPage int           `mapstructure:"per_page"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type TypefullyConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	URL               string        `mapstructure:"url"`
	SocialSetID       string        `mapstructure:"social_set_id"`
	Platforms         []string      `mapstructure:"platforms"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MediaPollAttempts int           `mapstructure:"media_poll_attempts"`
	MediaPollInterval time.Duration `mapstructure:"media_poll_interval"`
}

type ThreadConfig struct {
	MaxPostChars int `mapstructure:"max_post_chars"`
}

const (
	DefaultNansenURL         = "https://api.nansen.ai/api/v1/tgm/perp-positions"
	DefaultTypefullyURL      = "https://api.typefully.com/v2"
	DefaultPerPage           = 10
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = time.Second
	DefaultTimeout           = 30 * time.Second
	DefaultMediaPollAttempts = 10
	DefaultMediaPollInterval = time.Second

	maxPerPage = 10
	envPrefix  = "HYPERFEED"
)

// DefaultTokens is the token set covered by the daily feed.
var DefaultTokens = []string{"BTC", "ETH", "SOL", "HYPE"}

// LoadDotEnv loads a .env file into the process environment. A missing
// default file is not an error; an explicitly requested one is.
func LoadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig builds the configuration from defaults, the optional config
// file, environment variables and the bound command-line flags, in
// increasing order of precedence.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"tokens":                        DefaultTokens,
		"fetch_concurrency":             1,
		"output_dir":                    "output",
		"metrics_file":                  "",
		"debug_logging":                 false,
		"nansen.url":                    DefaultNansenURL,
		"nansen.per_page":               DefaultPerPage,
		"nansen.timeout":                DefaultTimeout,
		"retry.max_attempts":            DefaultMaxAttempts,
		"retry.initial_backoff":         DefaultInitialBackoff,
		"typefully.url":                 DefaultTypefullyURL,
		"typefully.platforms":           []string{"x"},
		"typefully.timeout":             DefaultTimeout,
		"typefully.media_poll_attempts": DefaultMediaPollAttempts,
		"typefully.media_poll_interval": DefaultMediaPollInterval,
		"thread.max_post_chars":         0,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := bindEnvironment(v); err != nil {
		return nil, err
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Tokens = normalizeTokens(cfg.Tokens)

	return &cfg, validateConfig(&cfg)
}

func bindEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep their conventional unprefixed names.
	bindings := map[string]string{
		"nansen.api_key":          "NANSEN_API_KEY",
		"typefully.api_key":       "TYPEFULLY_API_KEY",
		"typefully.social_set_id": "TYPEFULLY_SOCIAL_SET_ID",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"tokens":      "tokens",
	"debug":       "debug_logging",
	"output-dir":  "output_dir",
	"concurrency": "fetch_concurrency",
	"metrics":     "metrics_file",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func normalizeTokens(tokens []string) []string {
	var out []string
	seen := make(map[string]bool, len(tokens))
	for _, raw := range tokens {
		// Values from env or a single flag arrive comma separated.
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.Tokens) == 0 {
		return errors.New("tokens list is empty")
	}
	if err := validateURL(cfg.Nansen.URL); err != nil {
		return fmt.Errorf("invalid nansen.url: %w", err)
	}
	if err := validateURL(cfg.Typefully.URL); err != nil {
		return fmt.Errorf("invalid typefully.url: %w", err)
	}
	if len(cfg.Typefully.Platforms) == 0 {
		return errors.New("typefully.platforms is empty")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.FetchConcurrency < 1 {
		return errors.New("invalid fetch_concurrency")
	}
	if cfg.Nansen.PerPage < 1 || cfg.Nansen.PerPage > maxPerPage {
		return fmt.Errorf("invalid nansen.per_page (must be 1-%d)", maxPerPage)
	}
	if cfg.Nansen.Timeout <= 0 {
		return errors.New("invalid nansen.timeout")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("invalid retry.max_attempts")
	}
	if cfg.Retry.InitialBackoff < 0 {
		return errors.New("invalid retry.initial_backoff")
	}
	if cfg.Typefully.Timeout <= 0 {
		return errors.New("invalid typefully.timeout")
	}
	if cfg.Typefully.MediaPollAttempts < 1 {
		return errors.New("invalid typefully.media_poll_attempts")
	}
	if cfg.Thread.MaxPostChars < 0 {
		return errors.New("invalid thread.max_post_chars")
	}
	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, "http") || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// ValidateCredentials reports every missing credential at once. The
// Typefully key is only needed when something will actually be published.
func (c *Config) ValidateCredentials(requireNansen, requireTypefully bool) error {
	var errs []error
	if requireNansen && c.Nansen.APIKey == "" {
		errs = append(errs, errors.New("NANSEN_API_KEY is not set"))
	}
	if requireTypefully && c.Typefully.APIKey == "" {
		errs = append(errs, errors.New("TYPEFULLY_API_KEY is not set (required unless --dry-run)"))
	}
	return errors.Join(errs...)
}
