package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/batfiles/internal/config"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	creds *types.Credentials
	err   error
	calls atomic.Int32
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Initial(ctx context.Context) (*types.Credentials, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	c := *s.creds
	return &c, nil
}

func expiredCreds() *types.Credentials {
	return &types.Credentials{
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(-time.Minute),
		Type:         types.AuthTypeOAuth,
	}
}

func freshCreds(access string) *types.Credentials {
	return &types.Credentials{
		AccessToken:  access,
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(time.Hour),
		Type:         types.AuthTypeOAuth,
	}
}

func transientErr() error {
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeNetworkError, "token endpoint unavailable").Build())
}

func newTestProvider(source CredentialSource, refresh RefreshFunc) (*Provider, *Manager) {
	mgr := NewManager(NewMemoryStorage(), nil)
	return NewProvider(source, mgr, ProviderOptions{
		Profile: "default",
		Timeout: time.Second,
		Refresh: refresh,
		Logger:  logging.NewNoOpLogger(),
	}), mgr
}

func TestProvider_SingleRefreshUnderConcurrency(t *testing.T) {
	var refreshes atomic.Int32
	refresh := func(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
		refreshes.Add(1)
		time.Sleep(50 * time.Millisecond)
		return freshCreds("new-access"), nil
	}
	source := &staticSource{creds: expiredCreds()}
	p, _ := newTestProvider(source, refresh)

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := p.TokenContext(context.Background())
			errs[i] = err
			if tok != nil {
				tokens[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-access", tokens[i])
	}
	assert.EqualValues(t, 1, refreshes.Load(), "exactly one refresh must run")
	assert.EqualValues(t, 1, source.calls.Load())
}

func TestProvider_CachesValidToken(t *testing.T) {
	source := &staticSource{creds: freshCreds("valid")}
	p, _ := newTestProvider(source, func(context.Context, *types.Credentials) (*types.Credentials, error) {
		t.Fatal("refresh must not run for a valid token")
		return nil, nil
	})

	for i := 0; i < 3; i++ {
		tok, err := p.Token()
		require.NoError(t, err)
		assert.Equal(t, "valid", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.TokenType)
	}
	assert.EqualValues(t, 1, source.calls.Load())
}

func TestProvider_RefreshFailures(t *testing.T) {
	permanent := utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthExpired, "rejected").Build())

	tests := []struct {
		name         string
		results      []error
		wantAttempts int32
		wantErr      error
	}{
		{"transient then success", []error{transientErr(), nil}, 2, nil},
		{"transient twice", []error{transientErr(), transientErr()}, 2, utils.ErrTransient},
		{"permanent not retried", []error{permanent}, 1, utils.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			refresh := func(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
				n := attempts.Add(1)
				if err := tt.results[n-1]; err != nil {
					return nil, err
				}
				return freshCreds("recovered"), nil
			}
			p, _ := newTestProvider(&staticSource{creds: expiredCreds()}, refresh)

			tok, err := p.TokenContext(context.Background())
			assert.Equal(t, tt.wantAttempts, attempts.Load())
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "recovered", tok.AccessToken)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestProvider_SourceFailure(t *testing.T) {
	loadErr := utils.NewAppError(utils.NewServiceError(utils.ErrCodeAuthRequired, "no token").Build())
	p, _ := newTestProvider(&staticSource{err: loadErr}, nil)

	_, err := p.Token()
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPermission))
	assert.Nil(t, p.Snapshot())
}

func TestProvider_Invalidate(t *testing.T) {
	var refreshes atomic.Int32
	refresh := func(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
		refreshes.Add(1)
		assert.Equal(t, "refresh-1", creds.RefreshToken)
		return freshCreds("after-invalidate"), nil
	}
	p, _ := newTestProvider(&staticSource{creds: freshCreds("first")}, refresh)

	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", tok.AccessToken)

	p.Invalidate()

	tok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "after-invalidate", tok.AccessToken)
	assert.EqualValues(t, 1, refreshes.Load())
}

func TestProvider_CallerCancellationDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	refresh := func(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
		close(started)
		<-release
		return freshCreds("shared"), nil
	}
	p, _ := newTestProvider(&staticSource{creds: expiredCreds()}, refresh)

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := p.TokenContext(impatient)
		impatientErr <- err
	}()
	<-started

	patientTok := make(chan string, 1)
	go func() {
		tok, err := p.TokenContext(context.Background())
		if err == nil {
			patientTok <- tok.AccessToken
		} else {
			patientTok <- "error: " + err.Error()
		}
	}()

	cancel()
	err := <-impatientErr
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	close(release)
	assert.Equal(t, "shared", <-patientTok)
}

func TestProvider_PersistsRefreshedCredentials(t *testing.T) {
	p, mgr := newTestProvider(&staticSource{creds: expiredCreds()},
		func(context.Context, *types.Credentials) (*types.Credentials, error) {
			return freshCreds("persisted"), nil
		})

	_, err := p.Token()
	require.NoError(t, err)

	stored, err := mgr.LoadCredentials("default")
	require.NoError(t, err)
	assert.Equal(t, "persisted", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestManager_RefreshCredentials(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantAccess  string
		wantRefresh string
		wantErr     error
		wantCode    string
	}{
		{
			name:        "refresh token omitted keeps old one",
			status:      http.StatusOK,
			body:        `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`,
			wantAccess:  "at-2",
			wantRefresh: "refresh-1",
		},
		{
			name:        "rotated refresh token",
			status:      http.StatusOK,
			body:        `{"access_token":"at-3","refresh_token":"refresh-2","token_type":"Bearer","expires_in":3600}`,
			wantAccess:  "at-3",
			wantRefresh: "refresh-2",
		},
		{
			name:     "invalid grant",
			status:   http.StatusBadRequest,
			body:     `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`,
			wantErr:  utils.ErrPermission,
			wantCode: utils.ErrCodeAuthExpired,
		},
		{
			name:     "server error",
			status:   http.StatusServiceUnavailable,
			body:     `{"error":"backend"}`,
			wantErr:  utils.ErrTransient,
			wantCode: utils.ErrCodeNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTokenServer(t, tt.status, tt.body)
			mgr := NewManager(NewMemoryStorage(), testOAuthConfig(srv.URL))

			got, err := mgr.RefreshCredentials(context.Background(), expiredCreds())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, tt.wantCode, utils.AsAppError(err).ServiceError.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccess, got.AccessToken)
			assert.Equal(t, tt.wantRefresh, got.RefreshToken)
			assert.True(t, got.ExpiryDate.After(time.Now()))
		})
	}
}

func TestManager_RefreshCredentials_NoRefreshToken(t *testing.T) {
	mgr := NewManager(NewMemoryStorage(), testOAuthConfig(""))
	creds := expiredCreds()
	creds.RefreshToken = ""

	_, err := mgr.RefreshCredentials(context.Background(), creds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPermission))
}

func TestManager_NeedsRefresh(t *testing.T) {
	mgr := NewManager(NewMemoryStorage(), nil)

	tests := []struct {
		name     string
		creds    types.Credentials
		expected bool
	}{
		{"Expired credentials", types.Credentials{AccessToken: "a", ExpiryDate: time.Now().Add(-time.Hour)}, true},
		{"Expiring soon (within 5 min)", types.Credentials{AccessToken: "a", ExpiryDate: time.Now().Add(3 * time.Minute)}, true},
		{"Valid credentials", types.Credentials{AccessToken: "a", ExpiryDate: time.Now().Add(time.Hour)}, false},
		{"No access token", types.Credentials{RefreshToken: "r"}, true},
		{"No expiry", types.Credentials{AccessToken: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := tt.creds
			if got := mgr.NeedsRefresh(&creds); got != tt.expected {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	mgr := NewManager(NewPlainFileStorage(t.TempDir()), nil)
	creds := freshCreds("a")
	creds.Scopes = utils.ServiceScopes

	require.NoError(t, mgr.SaveCredentials("p", creds))
	got, err := mgr.LoadCredentials("p")
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, got.AccessToken)
	assert.Equal(t, creds.Scopes, got.Scopes)
	assert.WithinDuration(t, creds.ExpiryDate, got.ExpiryDate, time.Second)

	require.NoError(t, mgr.DeleteCredentials("p"))
	_, err = mgr.LoadCredentials("p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))
	assert.True(t, errors.Is(err, utils.ErrPermission))
}

func TestParseTokenJSON(t *testing.T) {
	tests := []struct {
		name        string
		blob        string
		wantErr     bool
		wantRefresh string
		wantExpiry  bool
	}{
		{"oauth2 format", `{"access_token":"a","refresh_token":"r","expiry":"2030-01-02T03:04:05Z"}`, false, "r", true},
		{"oauth2client format", `{"access_token":"a","refresh_token":"r","token_expiry":"2030-01-02T03:04:05Z"}`, false, "r", true},
		{"naive timestamp", `{"refresh_token":"r","token_expiry":"2030-01-02T03:04:05"}`, false, "r", true},
		{"refresh only", `{"refresh_token":"r"}`, false, "r", false},
		{"empty object", `{}`, true, "", false},
		{"garbage", `not json`, true, "", false},
		{"bad expiry", `{"refresh_token":"r","expiry":"tomorrow"}`, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseTokenJSON(tt.blob)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, utils.ErrPermission))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefresh, creds.RefreshToken)
			assert.Equal(t, tt.wantExpiry, !creds.ExpiryDate.IsZero())
			assert.Equal(t, utils.ServiceScopes, creds.Scopes)
		})
	}
}

func TestInteractiveFlowSource(t *testing.T) {
	mgr := NewManager(NewMemoryStorage(), nil)
	var logins atomic.Int32
	login := func(ctx context.Context) (*types.Credentials, error) {
		logins.Add(1)
		return freshCreds("from-login"), nil
	}
	src := NewInteractiveFlowSource(mgr, "default", login, logging.NewNoOpLogger())

	creds, err := src.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-login", creds.AccessToken)

	creds, err = src.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-login", creds.AccessToken)
	assert.EqualValues(t, 1, logins.Load(), "second call must read the store")
}

func TestInlineSecretSource(t *testing.T) {
	mgr := NewManager(NewMemoryStorage(), nil)

	inline := NewInlineSecretSource(`{"refresh_token":"inline-r"}`, mgr, "default")
	creds, err := inline.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inline-r", creds.RefreshToken)

	fromStore := NewInlineSecretSource("", mgr, "default")
	_, err = fromStore.Initial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPermission))
}

func TestNewCredentialSource(t *testing.T) {
	mgr := NewManager(NewMemoryStorage(), nil)
	login := func(context.Context) (*types.Credentials, error) { return nil, nil }
	logger := logging.NewNoOpLogger()

	dev := config.DefaultConfig()
	assert.Equal(t, "interactive-flow", NewCredentialSource(dev, mgr, login, logger).Name())
	assert.Equal(t, "inline-secret", NewCredentialSource(dev, mgr, nil, logger).Name())

	prod := config.DefaultConfig()
	prod.AppEnv = config.EnvProduction
	assert.Equal(t, "inline-secret", NewCredentialSource(prod, mgr, login, logger).Name())

	inline := config.DefaultConfig()
	inline.OAuthTokenJSON = `{"refresh_token":"r"}`
	assert.Equal(t, "inline-secret", NewCredentialSource(inline, mgr, login, logger).Name())
}
