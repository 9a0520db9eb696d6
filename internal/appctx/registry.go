// Package appctx holds the process-wide runtime registry: the lazily,
// asynchronously constructed messaging client, the authentication manager
// layered on it, and the image pipeline. One Registry is constructed at
// process start and passed by reference to every consumer; there is no
// package-level state.
//
// The central mechanism is the creation cycle. Each call to
// StartCreationCycle installs a fresh gate (a channel closed exactly once)
// and launches one background goroutine that constructs the client and then
// publishes it. Readers block in AwaitClient on the current cycle's gate;
// the channel close gives every reader the same published value with the
// usual happens-before guarantee. Publication runs under defer, so a
// construction fault can never leave readers blocked.
package appctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/environment"
	"github.com/couriermsg/courier/internal/images"
	"github.com/couriermsg/courier/internal/messaging"
	"github.com/couriermsg/courier/internal/pkg/idgen"
)

// ErrWaitInterrupted is returned by AwaitClient when the caller's context
// is cancelled while client construction is still in progress. It means
// "temporarily unavailable", not "no client was constructed".
var ErrWaitInterrupted = errors.New("interrupted while waiting for client construction")

// cycle is one client-construction lifetime. client is written at most
// once, before gate is closed; after the close it is immutable.
type cycle struct {
	id     string
	gate   chan struct{}
	client messaging.Client
}

// newPublishedCycle returns a cycle that is already open with the given
// value. Used for the pre-bootstrap state so readers never block on a cycle
// nobody will publish.
func newPublishedCycle(client messaging.Client) *cycle {
	c := &cycle{id: "init", gate: make(chan struct{}), client: client}
	close(c.gate)
	return c
}

// Registry is the process-wide runtime context.
type Registry struct {
	env  environment.Provider
	opts messaging.Options
	log  *slog.Logger

	mu      sync.Mutex
	current *cycle
	cancel  context.CancelFunc

	auth *auth.Manager

	imagesOnce sync.Once
	images     *images.Pipeline
	imagesErr  error

	imageCacheEntries int
}

// Settings configures a Registry.
type Settings struct {
	// Options is the messaging configuration value handed to every client
	// construction.
	Options messaging.Options
	// ImageCacheEntries bounds the image pipeline's cache. Zero means the
	// pipeline default.
	ImageCacheEntries int
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates a Registry for the given environment. No client construction
// happens until StartCreationCycle is called; until then AwaitClient
// returns an absent client without blocking.
func New(env environment.Provider, settings Settings) *Registry {
	log := settings.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		env:               env,
		opts:              settings.Options,
		log:               log,
		current:           newPublishedCycle(nil),
		imageCacheEntries: settings.ImageCacheEntries,
	}
	r.auth = auth.NewManager(r, env.AppID, env.BuildFlowProvider, log)
	return r
}

// Auth returns the authentication manager.
func (r *Registry) Auth() *auth.Manager {
	return r.auth
}

// AwaitClient blocks until the current creation cycle has published, then
// returns its client. A nil client with nil error means construction
// completed without producing a client (no app ID configured, or the build
// failed); ErrWaitInterrupted means ctx was cancelled first and the caller
// should treat the client as temporarily unavailable.
func (r *Registry) AwaitClient(ctx context.Context) (messaging.Client, error) {
	r.mu.Lock()
	c := r.current
	r.mu.Unlock()

	select {
	case <-c.gate:
		return c.client, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrWaitInterrupted, ctx.Err())
	}
}

// StartCreationCycle begins a new client-construction cycle. Safe to call
// repeatedly (environment switches start a fresh cycle); calls are
// serialized, and the previous cycle's in-flight construction is cancelled.
// A superseded construction still publishes to its own cycle, so readers
// that began waiting before the switch are never stranded.
func (r *Registry) StartCreationCycle() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	c := &cycle{id: idgen.GenerateID(), gate: make(chan struct{})}
	r.current = c
	r.mu.Unlock()

	r.log.Info("starting client creation cycle", slog.String("cycle_id", c.id))
	go r.construct(ctx, c)
}

// construct builds the client and publishes it. The publish (the gate
// close) runs under defer: it happens exactly once per cycle whether
// construction succeeds, yields no client, errors, or panics.
func (r *Registry) construct(ctx context.Context, c *cycle) {
	defer func() {
		if rec := recover(); rec != nil {
			c.client = nil
			r.log.Error("client construction panicked",
				slog.String("cycle_id", c.id),
				slog.Any("panic", rec),
			)
		}
		close(c.gate)
	}()

	client, err := r.env.BuildClient(ctx, r.opts)
	if err != nil {
		r.log.Error("client construction failed",
			slog.String("cycle_id", c.id),
			slog.String("error", err.Error()),
		)
		return
	}
	if client == nil {
		r.log.Info("no client constructed, environment not configured",
			slog.String("cycle_id", c.id))
		return
	}

	client.RegisterChallengeListener(r.auth)
	c.client = client
	r.log.Info("client constructed", slog.String("cycle_id", c.id))

	// Resume a persisted session, if the flow provider has credentials.
	r.auth.ResumeSession(client)
}

// Images returns the image pipeline, constructing it on first use. The
// attachment fetcher resolves the client through this registry, so the
// pipeline may be created before any creation cycle has run.
func (r *Registry) Images() (*images.Pipeline, error) {
	r.imagesOnce.Do(func() {
		p, err := images.New(r.imageCacheEntries, r.log)
		if err != nil {
			r.imagesErr = err
			return
		}
		p.RegisterFetcher("attachment", images.NewAttachmentFetcher(r))
		httpFetcher := images.NewHTTPFetcher()
		p.RegisterFetcher("http", httpFetcher)
		p.RegisterFetcher("https", httpFetcher)
		r.images = p
	})
	return r.images, r.imagesErr
}

// Close cancels any in-flight construction and closes the current client if
// one was published.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	client, err := r.AwaitClient(ctx)
	if err != nil || client == nil {
		return err
	}
	return client.Close()
}
