// Package terminal wires the session store, catalog synchronizer,
// subscription manager and quote synchronizer into one client.
//
// All component mutations run on a single event loop. Public methods hop
// onto the loop and wait; accessors read component state directly.
package terminal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/quotedesk/internal/api"
	"github.com/rickgao/quotedesk/internal/catalog"
	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/eventloop"
	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/quotes"
	"github.com/rickgao/quotedesk/internal/session"
	"github.com/rickgao/quotedesk/internal/storage"
	"github.com/rickgao/quotedesk/internal/subscription"
)

// ErrNotStarted is returned by operations called before Start or after Stop.
var ErrNotStarted = errors.New("terminal not started")

// Client is the quote terminal.
type Client struct {
	logger *slog.Logger
	loop   *eventloop.Loop

	session *session.Store
	subs    *subscription.Manager
	catalog *catalog.Synchronizer
	quotes  *quotes.Synchronizer

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New builds a client from cfg. kv is shared by every component.
func New(cfg *config.Config, kv storage.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	loop := eventloop.New(eventloop.DefaultQueueSize, logger.With("component", "eventloop"))

	rest := api.NewClient(cfg.API.LoginURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithLogger(logger.With("component", "api")),
	)

	subs := subscription.New(kv, cfg.Catalog.DefaultSubscriptions, logger.With("component", "subscription"))

	c := &Client{
		logger:  logger,
		loop:    loop,
		session: session.New(rest, kv, logger.With("component", "session")),
		subs:    subs,
		catalog: catalog.New(cfg.API.CatalogURL, cfg.Streams, kv, subs, loop, logger.With("component", "catalog")),
		quotes:  quotes.New(cfg.API.QuotesURL, cfg.Streams, cfg.Quotes, loop, logger.With("component", "quotes")),
		ctx:     context.Background(),
	}

	// Subscription changes always happen on the loop, so the resync does too.
	subs.OnChange(func(symbols []string) {
		c.quotes.Resync(c.lifetime(), symbols)
	})

	return c
}

// Start runs the event loop and brings every component up: restore the
// session, load cached subscriptions and catalog, connect the catalog
// stream and subscribe the quote stream.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("terminal already started")
	}
	lifetime, cancel := context.WithCancel(context.Background())
	c.ctx = lifetime
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	go c.loop.Run(lifetime)

	err := c.loop.Do(ctx, func() {
		cred, ok := c.session.Restore(lifetime)
		if err := c.subs.Load(lifetime); err != nil {
			c.logger.Warn("load subscriptions failed", "error", err)
		}
		c.catalog.Init(lifetime)

		if ok {
			c.catalog.Start(lifetime, &cred)
		} else {
			c.catalog.Start(lifetime, nil)
		}
		c.quotes.Resync(lifetime, c.subs.Symbols())
	})
	if err != nil {
		return err
	}

	c.logger.Info("terminal started",
		"logged_in", c.isLoggedIn(),
		"instruments", len(c.catalog.Instruments()),
		"subscriptions", len(c.subs.Symbols()),
	)
	return nil
}

// Stop tears down both streams and stops the loop.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	err := c.loop.Do(ctx, func() {
		c.catalog.Teardown()
		c.quotes.Teardown()
	})

	cancel()
	select {
	case <-c.loop.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	c.logger.Info("terminal stopped")
	if errors.Is(err, eventloop.ErrStopped) {
		return nil
	}
	return err
}

// Login authenticates and reconnects the catalog stream with the new
// credential. Failures are *session.AuthError.
func (c *Client) Login(ctx context.Context, identifier, secret string) (model.Credential, error) {
	if !c.running() {
		return model.Credential{}, ErrNotStarted
	}

	cred, err := c.session.Login(ctx, identifier, secret)
	if err != nil {
		return model.Credential{}, err
	}

	if err := c.loop.Do(ctx, func() {
		c.catalog.Start(c.lifetime(), &cred)
	}); err != nil {
		return cred, err
	}
	return cred, nil
}

// Logout wipes the session: both streams are torn down, the catalog is
// cleared from memory, and the subscription set is reset. The catalog is
// not restarted, so nothing is fetched or persisted until the next login.
func (c *Client) Logout(ctx context.Context) error {
	if !c.running() {
		return ErrNotStarted
	}

	var logoutErr error
	err := c.loop.Do(ctx, func() {
		c.catalog.Teardown()
		c.quotes.Teardown()
		logoutErr = c.session.Logout(c.lifetime())
		c.catalog.Clear()
		c.subs.Reset()
	})
	return errors.Join(err, logoutErr)
}

// Toggle flips symbol in the subscription set and returns the new set.
func (c *Client) Toggle(ctx context.Context, symbol string) ([]string, error) {
	if !c.running() {
		return nil, ErrNotStarted
	}

	var (
		symbols   []string
		toggleErr error
	)
	err := c.loop.Do(ctx, func() {
		symbols, toggleErr = c.subs.Toggle(c.lifetime(), symbol)
	})
	if err != nil {
		return nil, err
	}
	return symbols, toggleErr
}

// DismissCatalogError clears the catalog warning.
func (c *Client) DismissCatalogError() {
	c.catalog.DismissError()
}

func (c *Client) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Client) lifetime() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Client) isLoggedIn() bool {
	_, ok := c.session.Credential()
	return ok
}
