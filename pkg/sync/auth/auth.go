// Package auth caches authentication material per scope (the user-own
// account, and each linked notebook), deduplicating concurrent refreshes
// for the same scope onto a single in-flight attempt.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/sync/keychain"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

// Authenticator is the external collaborator that actually talks to the
// service to obtain or refresh tokens.
type Authenticator interface {
	AuthenticateAccount(ctx context.Context, account string) (types.AuthInfo, error)
	AuthenticateLinkedNotebook(ctx context.Context, account string, linkedNotebook types.LinkedNotebook) (types.AuthInfo, error)
}

// MetadataStore persists the non-sensitive parts of a scope's AuthInfo
// (everything but the token itself, which lives in the Keychain).
type MetadataStore interface {
	GetAuthMetadata(ctx context.Context, account string, scope types.ScopeID) (types.AuthInfo, bool, error)
	SetAuthMetadata(ctx context.Context, account string, scope types.ScopeID, info types.AuthInfo) error
}

const keychainService = "notesync"

// Config configures one Manager instance.
type Config struct {
	Authenticator Authenticator
	Keychain      keychain.Keychain
	Metadata      MetadataStore
	// Slack is subtracted from a cached token's expiration time before it
	// is considered usable; a token expiring within Slack is treated as
	// already expired so callers never race the server's own clock.
	Slack time.Duration
}

// Manager is the Auth Scope Manager (spec §4.1): it caches AuthInfo per
// scope until near expiry, and deduplicates concurrent callers for the same
// scope onto one in-flight authentication attempt.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	cache   map[cacheKey]types.AuthInfo
	inFlight map[cacheKey]*call
}

type cacheKey struct {
	account string
	scope   types.ScopeID
}

type call struct {
	done chan struct{}
	info types.AuthInfo
	err  error
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Authenticator == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "auth: Authenticator is required")
	}
	if cfg.Slack <= 0 {
		cfg.Slack = 2 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		log:      log.WithComponent("auth"),
		cache:    make(map[cacheKey]types.AuthInfo),
		inFlight: make(map[cacheKey]*call),
	}, nil
}

// AuthenticateAccount returns cached or freshly obtained AuthInfo for the
// user-own scope.
func (m *Manager) AuthenticateAccount(ctx context.Context, account string) (types.AuthInfo, error) {
	return m.authenticate(ctx, account, types.UserOwnScope(), func(ctx context.Context) (types.AuthInfo, error) {
		return m.cfg.Authenticator.AuthenticateAccount(ctx, account)
	})
}

// AuthenticateLinkedNotebook returns cached or freshly obtained AuthInfo for
// one linked notebook scope.
func (m *Manager) AuthenticateLinkedNotebook(ctx context.Context, account string, linkedNotebook types.LinkedNotebook) (types.AuthInfo, error) {
	scope := types.LinkedNotebookScope(linkedNotebook.Guid)
	return m.authenticate(ctx, account, scope, func(ctx context.Context) (types.AuthInfo, error) {
		return m.cfg.Authenticator.AuthenticateLinkedNotebook(ctx, account, linkedNotebook)
	})
}

// Invalidate evicts the cached entry for a scope, forcing the next call to
// re-authenticate. Called when the server reports AuthenticationExpired
// mid-run.
func (m *Manager) Invalidate(account string, scope types.ScopeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, cacheKey{account: account, scope: scope})
}

func (m *Manager) authenticate(ctx context.Context, account string, scope types.ScopeID, fetch func(context.Context) (types.AuthInfo, error)) (types.AuthInfo, error) {
	key := cacheKey{account: account, scope: scope}
	logger := m.log.With().Str("account", account).Str("scope", scope.String()).Logger()

	m.mu.Lock()
	if info, ok := m.cache[key]; ok && !info.Expired(time.Now(), m.cfg.Slack) {
		m.mu.Unlock()
		return info, nil
	}
	if c, ok := m.inFlight[key]; ok {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.info, c.err
		case <-ctx.Done():
			return types.AuthInfo{}, syncerr.Canceled()
		}
	}

	c := &call{done: make(chan struct{})}
	m.inFlight[key] = c
	m.mu.Unlock()

	logger.Debug().Msg("authenticating scope")
	info, err := fetch(ctx)
	if err != nil {
		if syncerr.OfKind(err, syncerr.AuthenticationExpired) || syncerr.OfKind(err, syncerr.RateLimitReached) {
			c.err = err
		} else {
			c.err = syncerr.Wrap(syncerr.AuthenticationFailed, "authenticate scope", err)
		}
	} else {
		c.info = info
		if perr := m.persist(ctx, account, scope, info); perr != nil {
			logger.Warn().Err(perr).Msg("failed to persist auth metadata or token")
		}
	}

	m.mu.Lock()
	if c.err == nil {
		m.cache[key] = c.info
	}
	delete(m.inFlight, key)
	m.mu.Unlock()
	close(c.done)

	return c.info, c.err
}

func (m *Manager) persist(ctx context.Context, account string, scope types.ScopeID, info types.AuthInfo) error {
	if m.cfg.Metadata != nil {
		if err := m.cfg.Metadata.SetAuthMetadata(ctx, account, scope, withoutToken(info)); err != nil {
			return err
		}
	}
	if m.cfg.Keychain != nil {
		if err := m.cfg.Keychain.Write(keychainService, keychainKey(account, scope), info.AuthToken); err != nil {
			return err
		}
	}
	return nil
}

func withoutToken(info types.AuthInfo) types.AuthInfo {
	info.AuthToken = ""
	return info
}

func keychainKey(account string, scope types.ScopeID) string {
	return account + "/" + scope.String()
}
