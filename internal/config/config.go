package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"autoreload-go/internal/filter"
	"autoreload-go/internal/host"
	"autoreload-go/internal/logger"
)

const DefaultInterval = 5

// Defaults is the baseline every WatchConfig starts from.
type Defaults struct {
	TemplatesDir        string
	ExcludedDirectories []string
	ExcludedExtensions  []string
	ExcludedPatterns    []string
	Interval            int
}

func DefaultWatch() Defaults {
	return Defaults{
		ExcludedDirectories: []string{"/images"},
		ExcludedExtensions:  []string{"jpeg", "jpg", "png", "svg", "gif"},
		ExcludedPatterns:    []string{},
		Interval:            DefaultInterval,
	}
}

// WatchConfig is the configuration of a single scan. It is rebuilt from
// Defaults for every request and never shared.
type WatchConfig struct {
	Root                string
	ExcludedDirectories []string
	ExcludedExtensions  []string
	ExcludedPatterns    []string
	Interval            int

	templatesDir string
}

// New builds a WatchConfig from d. The root is whatever resolver reports as
// the active template directory right now.
func New(d Defaults, resolver host.TemplateResolver) *WatchConfig {
	cfg := &WatchConfig{
		ExcludedDirectories: clone(d.ExcludedDirectories),
		ExcludedExtensions:  clone(d.ExcludedExtensions),
		ExcludedPatterns:    clone(d.ExcludedPatterns),
		Interval:            d.Interval,
		templatesDir:        d.TemplatesDir,
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if resolver != nil {
		cfg.Root = resolver.Resolve()
	}
	return cfg
}

func (c *WatchConfig) Rules() filter.Rules {
	return filter.Rules{
		ExcludedDirectories: c.ExcludedDirectories,
		ExcludedExtensions:  c.ExcludedExtensions,
		ExcludedPatterns:    c.ExcludedPatterns,
	}
}

// Overrides is a partial WatchConfig sent by a client. A nil field leaves the
// current value untouched.
type Overrides struct {
	ExcludedDirectories *[]string `json:"excludedDirectories,omitempty"`
	ExcludedExtensions  *[]string `json:"excludedExtensions,omitempty"`
	Interval            *int      `json:"interval,omitempty"`
	Root                *string   `json:"root,omitempty"`
	Template            *string   `json:"template,omitempty"`
}

func (o Overrides) IsEmpty() bool {
	return o.ExcludedDirectories == nil && o.ExcludedExtensions == nil &&
		o.Interval == nil && o.Root == nil && o.Template == nil
}

// ParseOverrides decodes a request body. It never fails: a body that is not a
// JSON object yields no overrides, and a key whose value has the wrong type is
// dropped while the other keys still apply.
func ParseOverrides(body []byte) Overrides {
	var o Overrides

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return o
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		logger.ForComponent("config").Debug("ignoring malformed overrides", "error", err)
		return o
	}

	o.ExcludedDirectories = decodeField[[]string](fields, "excludedDirectories")
	o.ExcludedExtensions = decodeField[[]string](fields, "excludedExtensions")
	o.Interval = decodeField[int](fields, "interval")
	o.Root = decodeField[string](fields, "root")
	o.Template = decodeField[string](fields, "template")

	return o
}

func decodeField[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.ForComponent("config").Debug("ignoring malformed override", "key", key, "error", err)
		return nil
	}
	return &v
}

// ApplyOverrides merges o into c field by field. A template or root that is
// not an existing directory is dropped and the previous root kept. When both
// are given, root wins.
func (c *WatchConfig) ApplyOverrides(o Overrides) {
	if o.ExcludedDirectories != nil {
		c.ExcludedDirectories = clone(*o.ExcludedDirectories)
	}
	if o.ExcludedExtensions != nil {
		c.ExcludedExtensions = clone(*o.ExcludedExtensions)
	}
	if o.Interval != nil && *o.Interval > 0 {
		c.Interval = *o.Interval
	}

	if o.Template != nil {
		if dir, ok := host.TemplatePath(c.templatesDir, *o.Template); ok && isDir(dir) {
			c.Root = dir
		} else {
			logger.ForComponent("config").Debug("keeping root, template rejected", "template", *o.Template, "root", c.Root)
		}
	}

	if o.Root != nil {
		root := *o.Root
		if root != "" && !filepath.IsAbs(root) && c.templatesDir != "" {
			root = filepath.Join(c.templatesDir, root)
		}
		if root != "" && isDir(root) {
			c.Root = filepath.Clean(root)
		} else {
			logger.ForComponent("config").Debug("keeping root, override rejected", "proposed", *o.Root, "root", c.Root)
		}
	}
}

// isDir reports whether path is a directory that can be opened.
func isDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	return err == nil && info.IsDir()
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
