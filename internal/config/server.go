package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"autoreload-go/internal/host"
)

// ServerConfig is the on-disk configuration of the serve command.
type ServerConfig struct {
	Listen              string       `yaml:"listen"`
	Path                string       `yaml:"path"`
	TemplatesDir        string       `yaml:"templates_dir"`
	DefaultTemplate     string       `yaml:"default_template"`
	Template            string       `yaml:"template"`
	TemplateMarker      string       `yaml:"template_marker"`
	ExcludedDirectories []string     `yaml:"excluded_directories"`
	ExcludedExtensions  []string     `yaml:"excluded_extensions"`
	ExcludedPatterns    []string     `yaml:"excluded_patterns"`
	Interval            int          `yaml:"interval"`
	Tokens              []host.Token `yaml:"tokens"`
	LogLevel            string       `yaml:"log_level"`
	LogFormat           string       `yaml:"log_format"`
}

func DefaultServerConfig() *ServerConfig {
	w := DefaultWatch()
	return &ServerConfig{
		Listen:              "127.0.0.1:8080",
		Path:                "/modules/frontendautoreload/latest",
		TemplatesDir:        "templates",
		DefaultTemplate:     "default",
		TemplateMarker:      host.DefaultMarker,
		ExcludedDirectories: w.ExcludedDirectories,
		ExcludedExtensions:  w.ExcludedExtensions,
		ExcludedPatterns:    w.ExcludedPatterns,
		Interval:            w.Interval,
		Tokens:              []host.Token{},
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadServerConfig reads a YAML file on top of DefaultServerConfig. A missing
// file yields the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// Initialize slices if nil (explicit nulls in the file)
	if cfg.ExcludedDirectories == nil {
		cfg.ExcludedDirectories = []string{}
	}
	if cfg.ExcludedExtensions == nil {
		cfg.ExcludedExtensions = []string{}
	}
	if cfg.ExcludedPatterns == nil {
		cfg.ExcludedPatterns = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.Interval)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /, got %q", c.Path)
	}
	// "/" would catch every route and leave "<path>/config" unreachable.
	if strings.HasSuffix(c.Path, "/") {
		return fmt.Errorf("path must not end with /, got %q", c.Path)
	}
	if c.DefaultTemplate == "" {
		return errors.New("default_template must not be empty")
	}
	return nil
}

// Watch returns the per-request defaults described by the file.
func (c *ServerConfig) Watch() Defaults {
	return Defaults{
		TemplatesDir:        c.TemplatesDir,
		ExcludedDirectories: c.ExcludedDirectories,
		ExcludedExtensions:  c.ExcludedExtensions,
		ExcludedPatterns:    c.ExcludedPatterns,
		Interval:            c.Interval,
	}
}

func (c *ServerConfig) Templates() host.TemplateDir {
	return host.TemplateDir{
		Base:    c.TemplatesDir,
		Default: c.DefaultTemplate,
		Page:    c.Template,
		Marker:  c.TemplateMarker,
	}
}
