// Package config loads formscan settings.
//
// Settings come from, in increasing priority: built-in defaults, a YAML file
// (formscan.yaml), a .env file in the working directory, FORMSCAN_* environment
// variables and command-line flags bound by the CLI. The Pipeline section is
// versioned and fingerprinted; see Pipeline.Fingerprint.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ironsheep/formscan/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. FORMSCAN_ORACLE_API_KEY.
const EnvPrefix = "FORMSCAN"

// Settings is the complete runtime configuration.
type Settings struct {
	Pipeline   Pipeline           `mapstructure:"pipeline" yaml:"pipeline"`
	Session    SessionSettings    `mapstructure:"session" yaml:"session"`
	Store      StoreSettings      `mapstructure:"store" yaml:"store"`
	Classifier ClassifierSettings `mapstructure:"classifier" yaml:"classifier"`
	Oracle     OracleSettings     `mapstructure:"oracle" yaml:"oracle"`
	Datastore  DatastoreSettings  `mapstructure:"datastore" yaml:"datastore"`
	OCR        OCRSettings        `mapstructure:"ocr" yaml:"ocr"`
	Quality    QualitySettings    `mapstructure:"quality" yaml:"quality"`
	Logging    logger.Config      `mapstructure:"logging" yaml:"logging"`
	Server     ServerSettings     `mapstructure:"server" yaml:"server"`
}

type SessionSettings struct {
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	LogDir    string `mapstructure:"log_dir" yaml:"log_dir"`
	Recursive bool   `mapstructure:"recursive" yaml:"recursive"`
}

type StoreSettings struct {
	Root string `mapstructure:"root" yaml:"root"`
}

type ClassifierSettings struct {
	ModelDir      string `mapstructure:"model_dir" yaml:"model_dir"`
	Threads       int    `mapstructure:"threads" yaml:"threads"`
	AllowMismatch bool   `mapstructure:"allow_mismatch" yaml:"allow_mismatch"`
}

type OracleSettings struct {
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Model             string        `mapstructure:"model" yaml:"model"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type DatastoreSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type OCRSettings struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Language       string  `mapstructure:"language" yaml:"language"`
	TessdataDir    string  `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
	HeaderFraction float64 `mapstructure:"header_fraction" yaml:"header_fraction"`
}

type QualitySettings struct {
	SkipBlank      bool    `mapstructure:"skip_blank" yaml:"skip_blank"`
	MinInkFraction float64 `mapstructure:"min_ink_fraction" yaml:"min_ink_fraction"`
}

type ServerSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// NewViper returns a viper instance primed with defaults, the config file and
// environment overrides. An explicit configFile must exist; otherwise a
// missing formscan.yaml is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("formscan")
		v.SetConfigType("yaml")
		for _, p := range defaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes and validates settings held by v.
func FromViper(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Load is NewViper followed by FromViper.
func Load(configFile string) (*Settings, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Default returns validated default settings without touching the
// filesystem or environment.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return settings
}

// ConfigUsed returns the config file viper read, or "" for defaults only.
func ConfigUsed(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "formscan"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "formscan"))
	}
	return paths
}
