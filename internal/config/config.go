package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in Config.Provider
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	Storage   StorageConfig `yaml:"storage"`
	LLM       LLMConfig     `yaml:"llm"`
	Mirror    MirrorConfig  `yaml:"mirror"`
	Events    EventsConfig  `yaml:"events"`
	Gmail     GmailConfig   `yaml:"gmail"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string   `yaml:"port"`
	BodyLimit    string   `yaml:"body_limit"`
	AllowOrigins []string `yaml:"allow_origins"`
	StaticDir    string   `yaml:"static_dir"`
}

// StorageConfig holds the local directory layout
type StorageConfig struct {
	InputsDir  string `yaml:"inputs_dir"`
	OutputsDir string `yaml:"outputs_dir"`
}

// LLMConfig holds generation client settings
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"-"`
	Model      string        `yaml:"model"`
	Project    string        `yaml:"project"`
	Location   string        `yaml:"location"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxTextLen int           `yaml:"max_text_len"`
}

// MirrorConfig holds the optional S3 mirror settings
type MirrorConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Enabled reports whether a bucket has been configured
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// EventsConfig holds the optional AMQP publisher settings
type EventsConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Enabled reports whether a broker URL has been configured
func (e EventsConfig) Enabled() bool {
	return e.URL != ""
}

// GmailConfig holds Gmail ingestion settings
type GmailConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	Concurrency     int    `yaml:"concurrency"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			BodyLimit:    "10M",
			AllowOrigins: []string{"*"},
			StaticDir:    "static",
		},
		Storage: StorageConfig{
			InputsDir:  "docs/inputs",
			OutputsDir: "docs/output",
		},
		LLM: LLMConfig{
			Provider: ProviderGemini,
			Model:    "gemini-2.5-flash",
			Location: "us-central1",
			Timeout:  120 * time.Second,
		},
		Mirror: MirrorConfig{
			Region: "us-east-1",
		},
		Events: EventsConfig{
			Exchange: "resume_events",
		},
		Gmail: GmailConfig{
			CredentialsPath: "credentials.json",
			TokenPath:       "token.json",
			Concurrency:     4,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFrom loads configuration from a YAML file, then applies .env and
// environment overrides. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.ApplyEnv()

	return cfg, nil
}

// ApplyEnv overrides configuration values from environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("BODY_LIMIT"); v != "" {
		c.Server.BodyLimit = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("INPUTS_DIR"); v != "" {
		c.Storage.InputsDir = v
	}
	if v := os.Getenv("OUTPUTS_DIR"); v != "" {
		c.Storage.OutputsDir = v
	}

	// KEY is the historical name; GEMINI_API_KEY wins when both are set.
	if v := os.Getenv("KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		c.LLM.Project = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_LOCATION"); v != "" {
		c.LLM.Location = v
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LLM.Timeout = d
		}
	}
	if v := os.Getenv("LLM_MAX_TEXT_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LLM.MaxTextLen = n
		}
	}

	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Mirror.Bucket = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Mirror.Endpoint = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Mirror.Region = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Mirror.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Mirror.SecretKey = v
	}

	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("AMQP_EXCHANGE"); v != "" {
		c.Events.Exchange = v
	}

	if v := os.Getenv("GMAIL_CREDENTIALS"); v != "" {
		c.Gmail.CredentialsPath = v
	}
	if v := os.Getenv("GMAIL_TOKEN"); v != "" {
		c.Gmail.TokenPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// Validate checks if the configuration is valid.
// A missing API key is not an error: the server starts and generation calls fail.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Storage.InputsDir == "" || c.Storage.OutputsDir == "" {
		return fmt.Errorf("inputs_dir and outputs_dir are required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.MaxTextLen < 0 {
		return fmt.Errorf("llm max_text_len must not be negative")
	}

	switch c.LLM.Provider {
	case ProviderGemini:
	case ProviderVertex:
		if c.LLM.Project == "" {
			return fmt.Errorf("google cloud project is required for the vertex provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	if c.Mirror.Enabled() && (c.Mirror.AccessKey == "" || c.Mirror.SecretKey == "") {
		return fmt.Errorf("s3 access key and secret key are required when a bucket is set")
	}

	return nil
}

// EnsureDirectories creates the inputs and outputs directories
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.InputsDir, c.Storage.OutputsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
