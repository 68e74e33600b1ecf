// Package config loads formflow configuration with viper: the form
// definition, logging, the submission store and tracing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/validation"
)

// EnvPrefix is the prefix of environment overrides, e.g. FORMFLOW_LOG_DEBUG.
const EnvPrefix = "FORMFLOW"

// Config holds application configuration.
type Config struct {
	Form       FormConfig       `mapstructure:"form"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// FormConfig describes the form.
type FormConfig struct {
	Title      string        `mapstructure:"title"`
	ErrorClass string        `mapstructure:"error_class"`
	TabOnEnter bool          `mapstructure:"tab_on_enter"`
	Fields     []FieldConfig `mapstructure:"fields"`
}

// FieldConfig describes one field. Validators maps validator names to their
// options.
type FieldConfig struct {
	Name       string         `mapstructure:"name"`
	Label      string         `mapstructure:"label"`
	Default    any            `mapstructure:"default"`
	Secret     bool           `mapstructure:"secret"`
	Validators map[string]any `mapstructure:"validators"`
}

// StoreConfig holds sqlite settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Debug bool   `mapstructure:"debug"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// ValidationConfig tunes the built-in validators.
type ValidationConfig struct {
	UniqueTTL time.Duration `mapstructure:"unique_ttl"`
	// Latency delays every validator, to exercise the async paths by hand.
	Latency time.Duration `mapstructure:"latency"`
}

// DefaultPath returns $HOME/.config/formflow/config.yaml.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "formflow", "config.yaml")
}

// Loader reads configuration from a YAML file and FORMFLOW_* environment
// variables and can watch the file for changes.
type Loader struct {
	mu       sync.Mutex
	v        *viper.Viper
	explicit bool
}

// NewLoader creates a loader for path. An empty path uses DefaultPath, which
// may be missing.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Loader{v: v, explicit: explicit}
}

func setDefaults(v *viper.Viper) {
	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "formflow")

	v.SetDefault("form.title", "Form")
	v.SetDefault("form.error_class", "Form-error")
	v.SetDefault("form.tab_on_enter", true)
	v.SetDefault("store.path", filepath.Join(dataDir, "formflow.db"))
	v.SetDefault("log.path", filepath.Join(dataDir, "debug.log"))
	v.SetDefault("log.debug", false)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("validation.unique_ttl", validation.DefaultUniqueTTL)
	v.SetDefault("validation.latency", time.Duration(0))
}

// Load reads the file (when present) and decodes the configuration. A
// missing file is an error only when its path was given explicitly.
func (l *Loader) Load() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config %s: %w", l.v.ConfigFileUsed(), err)
		}
	}
	return l.decodeLocked()
}

// Path returns the config file in use, or "" when none was found.
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.ConfigFileUsed()
}

func (l *Loader) decodeLocked() (Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Form.check(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Watch calls onChange with the re-decoded configuration every time the file
// changes on disk.
func (l *Loader) Watch(onChange func(Config, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info(log.CatConfig, "config file changed", "file", e.Name, "op", e.Op.String())
		l.mu.Lock()
		c, err := l.decodeLocked()
		l.mu.Unlock()
		if err != nil {
			log.ErrorErr(log.CatConfig, "reloading config", err)
		}
		onChange(c, err)
	})
	l.v.WatchConfig()
}

func fieldError(name string, err error) error {
	return fmt.Errorf("form field %q: %w", name, err)
}

func (f FormConfig) check() error {
	seen := make(map[string]bool, len(f.Fields))
	for i, field := range f.Fields {
		if strings.TrimSpace(field.Name) == "" {
			return fmt.Errorf("form.fields[%d]: name is required", i)
		}
		if seen[field.Name] {
			return fmt.Errorf("form.fields[%d]: duplicate field %q", i, field.Name)
		}
		seen[field.Name] = true
	}
	return nil
}
