package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshTimeout = 30 * time.Second
	refreshAttempts       = 2
	tokenKey              = "token"
)

// RefreshFunc exchanges creds for fresh ones
type RefreshFunc func(ctx context.Context, creds *types.Credentials) (*types.Credentials, error)

// ProviderOptions configures a Provider
type ProviderOptions struct {
	Profile string
	// Timeout bounds each refresh attempt
	Timeout time.Duration
	// InitTimeout bounds the initial acquisition, which may wait on a human
	InitTimeout time.Duration
	Refresh     RefreshFunc
	Logger      logging.Logger
	Now         func() time.Time
}

// Provider hands out a valid access token. The token is cached process-wide
// and at most one refresh runs at a time; concurrent callers share its result.
type Provider struct {
	source      CredentialSource
	manager     *Manager
	profile     string
	refresh     RefreshFunc
	timeout     time.Duration
	initTimeout time.Duration
	logger      logging.Logger
	now         func() time.Time

	mu      sync.RWMutex
	current *types.Credentials
	group   singleflight.Group
}

// NewProvider creates a provider. Nothing is fetched until the first Token call.
func NewProvider(source CredentialSource, manager *Manager, opts ProviderOptions) *Provider {
	p := &Provider{
		source:      source,
		manager:     manager,
		profile:     opts.Profile,
		refresh:     opts.Refresh,
		timeout:     opts.Timeout,
		initTimeout: opts.InitTimeout,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if p.refresh == nil {
		p.refresh = manager.RefreshCredentials
	}
	if p.timeout <= 0 {
		p.timeout = defaultRefreshTimeout
	}
	if p.initTimeout <= 0 {
		p.initTimeout = defaultLoginTimeout
	}
	if p.logger == nil {
		p.logger = logging.NewNoOpLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.profile == "" {
		p.profile = "default"
	}
	return p
}

// Token implements oauth2.TokenSource
func (p *Provider) Token() (*oauth2.Token, error) {
	return p.TokenContext(context.Background())
}

// TokenContext returns a valid token, refreshing if needed. A caller whose ctx
// ends stops waiting; the refresh itself keeps running for the others.
func (p *Provider) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	if creds := p.cached(); creds != nil {
		return credentialsToToken(creds), nil
	}

	ch := p.group.DoChan(tokenKey, func() (interface{}, error) {
		return p.acquire()
	})
	select {
	case <-ctx.Done():
		return nil, utils.AsAppError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return credentialsToToken(res.Val.(*types.Credentials)), nil
	}
}

// Invalidate forces the next Token call to refresh, e.g. after Drive answered 401
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	stale := *p.current
	stale.AccessToken = ""
	p.current = &stale
	p.logger.Debug("Cached access token invalidated")
}

// Snapshot returns a copy of the cached credentials, or nil before first use
func (p *Provider) Snapshot() *types.Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	c := *p.current
	return &c
}

// SourceName names the credential source in use
func (p *Provider) SourceName() string {
	return p.source.Name()
}

func (p *Provider) cached() *types.Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current != nil && !needsRefresh(p.current, p.now()) {
		return p.current
	}
	return nil
}

func (p *Provider) set(creds *types.Credentials) {
	p.mu.Lock()
	p.current = creds
	p.mu.Unlock()
}

// acquire runs inside the singleflight group
func (p *Provider) acquire() (*types.Credentials, error) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if current == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.initTimeout)
		creds, err := p.source.Initial(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Loaded initial credentials", logging.F("source", p.source.Name()))
		current = creds
		p.set(current)
	}

	if !needsRefresh(current, p.now()) {
		return current, nil
	}

	refreshed, err := p.refreshWithRetry(current)
	if err != nil {
		return nil, err
	}
	p.set(refreshed)

	if err := p.manager.SaveCredentials(p.profile, refreshed); err != nil {
		p.logger.Warn("Failed to persist refreshed credentials",
			logging.F("store", p.manager.GetStorageBackend()),
			logging.F("error", err),
		)
	}
	return refreshed, nil
}

func (p *Provider) refreshWithRetry(current *types.Credentials) (*types.Credentials, error) {
	var lastErr error
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		refreshed, err := p.refresh(ctx, current)
		cancel()
		if err == nil {
			p.logger.Info("Access token refreshed", logging.F("expiry", refreshed.ExpiryDate))
			return refreshed, nil
		}
		lastErr = utils.AsAppError(err)
		if !errors.Is(lastErr, utils.ErrTransient) {
			break
		}
		p.logger.Warn("Token refresh failed",
			logging.F("attempt", attempt),
			logging.F("error", err),
		)
	}
	return nil, lastErr
}

func needsRefresh(creds *types.Credentials, now time.Time) bool {
	if creds.AccessToken == "" {
		return true
	}
	if creds.ExpiryDate.IsZero() {
		return false
	}
	return now.Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}
