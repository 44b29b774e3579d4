package google

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	people "google.golang.org/api/people/v1"

	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// Resolver brings an account's credential to a usable state. Satisfied by
// *auth.RenewalPolicy.
type Resolver interface {
	Resolve(ctx context.Context, email string) auth.Resolution
}

type cacheKey struct {
	email   string
	service Service
}

type cacheEntry struct {
	client      interface{}
	accessToken string
}

// ClientCache memoizes authenticated Google API clients per account and
// service. Every client is bound to a static token source built from the
// resolved credential; nothing mutates a shared OAuth client. A refreshed
// access token invalidates the cached client for that account and service on
// the next lookup.
type ClientCache struct {
	mu       sync.Mutex
	resolver Resolver
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	entries  map[cacheKey]cacheEntry
}

// NewClientCache creates an empty client cache over the given resolver.
func NewClientCache(resolver Resolver, metrics *instrumentation.Metrics, logger *slog.Logger) *ClientCache {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCache{
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
		entries:  make(map[cacheKey]cacheEntry),
	}
}

// Gmail returns an authenticated Gmail client for the account.
func (c *ClientCache) Gmail(ctx context.Context, email string) (*gmail.Service, error) {
	v, err := c.client(ctx, email, ServiceGmail, func(ctx context.Context, ts oauth2.TokenSource) (interface{}, error) {
		return gmail.NewService(ctx, option.WithTokenSource(ts))
	})
	if err != nil {
		return nil, err
	}
	return v.(*gmail.Service), nil
}

// Calendar returns an authenticated Calendar client for the account.
func (c *ClientCache) Calendar(ctx context.Context, email string) (*calendar.Service, error) {
	v, err := c.client(ctx, email, ServiceCalendar, func(ctx context.Context, ts oauth2.TokenSource) (interface{}, error) {
		return calendar.NewService(ctx, option.WithTokenSource(ts))
	})
	if err != nil {
		return nil, err
	}
	return v.(*calendar.Service), nil
}

// Drive returns an authenticated Drive client for the account.
func (c *ClientCache) Drive(ctx context.Context, email string) (*drive.Service, error) {
	v, err := c.client(ctx, email, ServiceDrive, func(ctx context.Context, ts oauth2.TokenSource) (interface{}, error) {
		return drive.NewService(ctx, option.WithTokenSource(ts))
	})
	if err != nil {
		return nil, err
	}
	return v.(*drive.Service), nil
}

// People returns an authenticated People client for the account.
func (c *ClientCache) People(ctx context.Context, email string) (*people.Service, error) {
	v, err := c.client(ctx, email, ServicePeople, func(ctx context.Context, ts oauth2.TokenSource) (interface{}, error) {
		return people.NewService(ctx, option.WithTokenSource(ts))
	})
	if err != nil {
		return nil, err
	}
	return v.(*people.Service), nil
}

// Invalidate drops all cached clients for an account. Called when the account
// is removed or re-authorized.
func (c *ClientCache) Invalidate(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.email == email {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached clients across all accounts.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type buildFunc func(ctx context.Context, ts oauth2.TokenSource) (interface{}, error)

// client resolves the account's credential and returns a cached or freshly
// built client for the service. The credential resolution happens outside the
// cache lock so a slow refresh for one account does not block lookups for
// others.
func (c *ClientCache) client(ctx context.Context, email string, svc Service, build buildFunc) (interface{}, error) {
	res := c.resolver.Resolve(ctx, email)
	if !res.Status.Usable() {
		return nil, &auth.AuthRequiredError{Email: email, Status: res.Status}
	}

	if missing := res.Credential.MissingScopes(ScopesFor(svc)); len(missing) > 0 {
		return nil, &auth.ScopeError{Email: email, Missing: missing}
	}

	key := cacheKey{email: email, service: svc}

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && entry.accessToken == res.Credential.AccessToken {
		c.mu.Unlock()
		c.metrics.RecordClientCacheLookup(ctx, string(svc), instrumentation.CacheHit)
		return entry.client, nil
	}
	c.mu.Unlock()
	c.metrics.RecordClientCacheLookup(ctx, string(svc), instrumentation.CacheMiss)

	client, err := build(ctx, oauth2.StaticTokenSource(res.Credential.Token()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", svc, err)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{client: client, accessToken: res.Credential.AccessToken}
	c.mu.Unlock()

	c.logger.Debug("built authenticated client",
		logging.Service(string(svc)),
		slog.String(logging.KeyAccount, logging.AnonymizeEmail(email)))
	return client, nil
}
