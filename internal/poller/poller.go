// Package poller asks a change endpoint for the latest modification time on a
// fixed interval and fires an action when it moves forward.
//
// The first answer only sets the baseline. After that the action runs once for
// every strictly greater timestamp; equal or smaller values are ignored, which
// keeps clock skew from causing spurious reloads. Any transport failure stops
// the loop for good: this is a development tool and a failing endpoint means
// it is misconfigured, not flaky.
package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"autoreload-go/internal/config"
	"autoreload-go/internal/endpoint"
	"autoreload-go/internal/logger"
	"autoreload-go/internal/state"
)

const maxResponseBytes = 1 << 20

// ErrStopped is returned by Poll once the poller has stopped.
var ErrStopped = errors.New("poller is stopped")

type State int

const (
	Idle State = iota
	Polling
	Triggered
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Triggered:
		return "triggered"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Action is invoked with the new timestamp each time a change is detected.
type Action func(ctx context.Context, ts int64) error

// TransportError reports a failed request or an unusable response.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("poll %s: unexpected status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("poll %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Options struct {
	URL       string
	Interval  time.Duration
	Overrides config.Overrides
	Token     string
	Client    *http.Client
	Store     state.Store
	Action    Action
	Logger    *slog.Logger
}

type Poller struct {
	url       string
	interval  time.Duration
	overrides config.Overrides
	token     string
	client    *http.Client
	store     state.Store
	action    Action
	log       *slog.Logger

	mu    sync.Mutex
	state State
}

func New(opts Options) (*Poller, error) {
	if opts.URL == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}

	p := &Poller{
		url:       opts.URL,
		interval:  opts.Interval,
		overrides: opts.Overrides,
		token:     opts.Token,
		client:    opts.Client,
		store:     opts.Store,
		action:    opts.Action,
		log:       opts.Logger,
	}

	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.store == nil {
		p.store = state.NewMemoryStore()
	}
	if p.log == nil {
		p.log = logger.ForComponent("poller")
	}
	if p.action == nil {
		p.action = func(_ context.Context, ts int64) error {
			p.log.Info("change detected", "timestamp", ts)
			return nil
		}
	}

	return p, nil
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run polls immediately and then once per interval until ctx is cancelled
// (returns nil) or a request fails (returns the *TransportError).
//
// Polls never overlap: the next request is only sent after the previous one
// finished, and ticks that fire meanwhile are dropped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				p.setState(Stopped)
				return nil
			}
			if errors.Is(err, ErrStopped) {
				return err
			}

			var te *TransportError
			if errors.As(err, &te) {
				p.log.Error("polling stopped due to invalid response; check that the endpoint is reachable and the token has admin rights",
					"url", p.url, "error", err)
				return err
			}
			p.log.Warn("poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.setState(Stopped)
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one request and compares the answer with the stored baseline.
// It reports whether the action was triggered. A *TransportError moves the
// poller to Stopped.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	if p.State() == Stopped {
		return false, ErrStopped
	}
	p.setState(Polling)

	ts, err := p.fetch(ctx)
	if err != nil {
		p.setState(Stopped)
		return false, err
	}

	last, ok, err := p.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load last timestamp: %w", err)
	}

	if !ok {
		p.log.Debug("baseline set", "timestamp", ts)
		if err := p.store.Save(ctx, ts); err != nil {
			return false, fmt.Errorf("failed to save baseline: %w", err)
		}
		return false, nil
	}

	if ts <= last {
		return false, nil
	}

	if err := p.store.Save(ctx, ts); err != nil {
		return false, fmt.Errorf("failed to save timestamp: %w", err)
	}

	p.setState(Triggered)
	p.log.Debug("timestamp advanced", "previous", last, "timestamp", ts)
	if err := p.action(ctx, ts); err != nil {
		p.log.Warn("reload action failed", "error", err)
	}
	return true, nil
}

func (p *Poller) fetch(ctx context.Context) (int64, error) {
	body, err := json.Marshal(p.overrides)
	if err != nil {
		return 0, fmt.Errorf("failed to encode overrides: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, &TransportError{URL: p.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &TransportError{URL: p.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, &TransportError{URL: p.url, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &TransportError{URL: p.url, Status: resp.StatusCode, Err: errors.New("network response was not ok")}
	}

	var ts int64
	if err := json.Unmarshal(data, &ts); err != nil {
		return 0, &TransportError{URL: p.url, Status: resp.StatusCode, Err: fmt.Errorf("response is not a timestamp: %w", err)}
	}

	return ts, nil
}

// FetchConfig loads the server's default polling configuration from configURL.
func FetchConfig(ctx context.Context, client *http.Client, configURL, token string) (*endpoint.ClientConfig, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, &TransportError{URL: configURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: configURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: configURL, Status: resp.StatusCode, Err: errors.New("network response was not ok")}
	}

	var cc endpoint.ClientConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&cc); err != nil {
		return nil, &TransportError{URL: configURL, Status: resp.StatusCode, Err: fmt.Errorf("invalid config: %w", err)}
	}
	return &cc, nil
}

// Overrides turns a server config into the request body the poller sends.
func Overrides(cc *endpoint.ClientConfig) config.Overrides {
	dirs := cc.ExcludedDirectories
	exts := cc.ExcludedExtensions
	interval := cc.Interval
	o := config.Overrides{
		ExcludedDirectories: &dirs,
		ExcludedExtensions:  &exts,
		Interval:            &interval,
	}
	if cc.Template != "" {
		template := cc.Template
		o.Template = &template
	}
	return o
}
