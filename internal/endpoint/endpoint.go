// Package endpoint serves the latest modification time of the watched tree to
// authorized polling clients.
package endpoint

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"autoreload-go/internal/config"
	"autoreload-go/internal/filter"
	"autoreload-go/internal/host"
	"autoreload-go/internal/logger"
	"autoreload-go/internal/walker"
)

const (
	contentType  = "application/json; charset=utf-8"
	maxBodyBytes = 64 * 1024
)

type Options struct {
	Capabilities host.Capabilities
	Resolver     host.TemplateResolver
	Defaults     config.Defaults
	Logger       *slog.Logger
}

// Handler answers change polls. It keeps no state between requests: every call
// builds its own WatchConfig from the defaults and the request body.
type Handler struct {
	caps     host.Capabilities
	resolver host.TemplateResolver
	defaults config.Defaults
	log      *slog.Logger
}

func New(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.ForComponent("endpoint")
	}
	return &Handler{
		caps:     opts.Capabilities,
		resolver: opts.Resolver,
		defaults: opts.Defaults,
		log:      log,
	}
}

// authorized requires both an authenticated caller and elevated privileges.
func (h *Handler) authorized(r *http.Request) bool {
	if h.caps == nil {
		return false
	}
	return h.caps.IsAuthenticated(r) && h.caps.IsAdmin(r)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		// Look exactly like a route that does not exist.
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	log := h.log.With("request_id", uuid.NewString())

	cfg := config.New(h.defaults, h.resolver)
	cfg.ApplyOverrides(readOverrides(w, r, log))

	var latest int64
	result, err := walker.Scan(r.Context(), cfg.Root, filter.New(cfg.Rules()))
	switch {
	case errors.Is(err, walker.ErrNotFound):
		log.Debug("watched root missing", "root", cfg.Root)
	case err != nil:
		log.Warn("scan failed", "root", cfg.Root, "error", err)
	default:
		latest = result.Latest
		log.Debug("scan complete",
			"root", cfg.Root,
			"latest", result.Latest,
			"newest", result.Newest,
			"files", result.Files,
			"pruned", result.Pruned,
			"errors", len(result.Errors),
		)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, strconv.FormatInt(latest, 10))
}

func readOverrides(w http.ResponseWriter, r *http.Request, log *slog.Logger) config.Overrides {
	if r.Body == nil || r.Method != http.MethodPost {
		return config.Overrides{}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Debug("ignoring unreadable body", "error", err)
		return config.Overrides{}
	}
	return config.ParseOverrides(body)
}

// ClientConfig is what a client needs to start polling with the server's defaults.
type ClientConfig struct {
	ExcludedDirectories []string `json:"excludedDirectories"`
	ExcludedExtensions  []string `json:"excludedExtensions"`
	Interval            int      `json:"interval"`
	Template            string   `json:"template,omitempty"`
}

// ConfigHandler returns the default polling configuration, behind the same
// authorization gate as the change endpoint.
func (h *Handler) ConfigHandler(template func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			http.NotFound(w, r)
			return
		}

		cfg := config.New(h.defaults, nil)
		cc := ClientConfig{
			ExcludedDirectories: cfg.ExcludedDirectories,
			ExcludedExtensions:  cfg.ExcludedExtensions,
			Interval:            cfg.Interval,
		}
		if template != nil {
			cc.Template = template()
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(cc); err != nil {
			h.log.Debug("failed to write client config", "error", err)
		}
	})
}

// Register mounts the change endpoint at path and its client config at path+"/config".
func (h *Handler) Register(mux *http.ServeMux, path string, template func() string) {
	mux.Handle(path, h)
	mux.Handle(path+"/config", h.ConfigHandler(template))
}
