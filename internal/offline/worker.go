// Package offline implements the offline cache worker: a versioned,
// cache-first front for the application shell that also delivers
// scheduled reminder notifications from its own event loop.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"festplan/internal/clock"
	appLog "festplan/internal/log"
	"festplan/internal/notify"
)

// State is the worker lifecycle state.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed" // waiting for activation
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

var (
	// ErrNoShell is the one unrecoverable condition: the network failed
	// and the shell document is not cached either.
	ErrNoShell = errors.New("offline: network unavailable and no cached shell")

	ErrNotInstalled = errors.New("offline: worker is not installed")
	ErrInboxFull    = errors.New("offline: message inbox full")
)

const (
	pushTag      = "festplan-reminder"
	inboxSize    = 64
	fetchTimeout = 15 * time.Second
)

// Config describes one deployed worker version.
type Config struct {
	// Version names the cache bucket; exactly one version is live.
	Version string
	// Shell lists the paths cached at install time.
	Shell []string
	// Fallback is the shell document served when the network is down.
	Fallback string
	// Origin is the upstream that serves the app.
	Origin *url.URL
	// Location is the zone for event times without an offset. Defaults to
	// the clock's zone.
	Location *time.Location
	// Style is applied to reminder and push notifications.
	Style notify.Style
	// Client overrides the HTTP client used for network fetches.
	Client *http.Client
}

type Worker struct {
	cfg      Config
	caches   *CacheStorage
	clients  *Clients
	notifier notify.Notifier
	clock    clock.Clock
	client   *http.Client

	mu     sync.Mutex
	state  State
	timers map[string]clock.Timer

	tasks   chan func(context.Context)
	running atomic.Bool
}

func New(cfg Config, caches *CacheStorage, notifier notify.Notifier, clk clock.Clock) *Worker {
	if clk == nil {
		clk = clock.Real{}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "/index.html"
	}
	return &Worker{
		cfg:      cfg,
		caches:   caches,
		clients:  NewClients(),
		notifier: notifier,
		clock:    clk,
		client:   client,
		state:    StateNew,
		timers:   make(map[string]clock.Timer),
		tasks:    make(chan func(context.Context), inboxSize),
	}
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Version() string { return w.cfg.Version }

func (w *Worker) Clients() *Clients { return w.clients }

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	appLog.Info("offline worker state", "version", w.cfg.Version, "from", prev, "to", s)
}

// Register installs the worker and, as the first version for this process,
// activates it right away.
func (w *Worker) Register(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

// Install fetches every shell asset and stores them in the version's
// bucket. Any failed asset fails the install and nothing is stored.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	existed := w.caches.Has(w.cfg.Version)
	cache, err := w.caches.Open(w.cfg.Version)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("offline: open cache %s: %w", w.cfg.Version, err)
	}

	entries := make([]*Entry, len(w.cfg.Shell))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range w.cfg.Shell {
		g.Go(func() error {
			e, err := w.fetchShellAsset(gctx, path)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !existed {
			_, _ = w.caches.Delete(w.cfg.Version)
		}
		w.setState(StateRedundant)
		return fmt.Errorf("offline: install %s: %w", w.cfg.Version, err)
	}

	for _, e := range entries {
		if err := cache.Put(e); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("offline: install %s: store %s: %w", w.cfg.Version, e.URL, err)
		}
	}
	appLog.Info("offline worker cached app shell", "version", w.cfg.Version, "assets", len(entries))
	w.setState(StateInstalled)
	return nil
}

func (w *Worker) fetchShellAsset(ctx context.Context, path string) (*Entry, error) {
	target, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shell asset %s: %s", path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Entry{URL: target.String(), Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// Activate deletes every cache bucket except the current version and
// takes control of all open clients.
func (w *Worker) Activate(_ context.Context) error {
	if st := w.State(); st != StateInstalled {
		return fmt.Errorf("%w (state %s)", ErrNotInstalled, st)
	}
	w.setState(StateActivating)

	names, err := w.caches.Keys()
	if err != nil {
		return fmt.Errorf("offline: list caches: %w", err)
	}
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		if _, err := w.caches.Delete(name); err != nil {
			appLog.Error("offline worker: delete stale cache failed", err, "cache", name)
			continue
		}
		appLog.Info("offline worker cleared old cache", "cache", name)
	}

	claimed := w.clients.Claim(w.cfg.Version)
	w.setState(StateActivated)
	appLog.Info("offline worker active", "version", w.cfg.Version, "clients", claimed)
	return nil
}

// SkipWaiting activates an installed worker without waiting for clients
// to go away. It is a no-op in any other state.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	if w.State() != StateInstalled {
		return nil
	}
	return w.Activate(ctx)
}

// Fetch answers req cache-first. Misses go to the network; good same-origin
// responses are cached on the way back. When the network fails the cached
// shell document is returned instead.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target, err := w.resolve(req.URL.RequestURI())
	if err != nil {
		return nil, err
	}
	if w.State() != StateActivated || req.Method != http.MethodGet {
		// Uncontrolled or uncacheable: plain network.
		return w.network(ctx, req, target)
	}

	cache, err := w.caches.Open(w.cfg.Version)
	if err != nil {
		return nil, err
	}
	if e, ok, err := cache.Match(target.String()); err != nil {
		appLog.Warn("offline worker: cache read failed", err, "url", target.String())
	} else if ok {
		appLog.Debug("offline worker cache hit", "url", target.String())
		return e.Response(req), nil
	}

	resp, netErr := w.network(ctx, req, target)
	if netErr != nil {
		appLog.Warn("offline worker: network failed, serving shell", netErr, "url", target.String())
		return w.shell(cache, req, netErr)
	}
	if resp.StatusCode != http.StatusOK || !w.sameOrigin(resp) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return w.shell(cache, req, err)
	}
	entry := &Entry{URL: target.String(), Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := cache.Put(entry); err != nil {
		appLog.Warn("offline worker: cache put failed", err, "url", target.String())
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (w *Worker) shell(cache *Cache, req *http.Request, cause error) (*http.Response, error) {
	target, err := w.resolve(w.cfg.Fallback)
	if err != nil {
		return nil, err
	}
	e, ok, err := cache.Match(target.String())
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoShell, cause)
	}
	return e.Response(req), nil
}

func (w *Worker) network(ctx context.Context, req *http.Request, target *url.URL) (*http.Response, error) {
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	out.Header = req.Header.Clone()
	out.Header.Del("Connection")
	return w.client.Do(out)
}

func (w *Worker) resolve(path string) (*url.URL, error) {
	if w.cfg.Origin == nil {
		return nil, errors.New("offline: origin not configured")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("offline: bad path %q: %w", path, err)
	}
	return w.cfg.Origin.ResolveReference(ref), nil
}

// sameOrigin reports whether the final (post-redirect) URL is still on the
// configured origin.
func (w *Worker) sameOrigin(resp *http.Response) bool {
	if resp.Request == nil || resp.Request.URL == nil {
		return false
	}
	u := resp.Request.URL
	return u.Scheme == w.cfg.Origin.Scheme && u.Host == w.cfg.Origin.Host
}
