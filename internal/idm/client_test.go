package idm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/logging"
)

// grantedStrategy returns a fixed usable primary token without any flow.
type grantedStrategy struct{ tenant string }

func (s grantedStrategy) Name() string { return "granted" }

func (s grantedStrategy) Acquire(context.Context, []string) (*auth.TokenRecord, error) {
	return &auth.TokenRecord{
		AccessToken: "primary-tok",
		ExpiresAt:   time.Now().Add(time.Hour),
		Tenant:      s.tenant,
	}, nil
}

func TestQueryUsesScopedToken(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, slog.LevelDebug)

	mux := http.NewServeMux()
	mux.HandleFunc("/am/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"scoped-tok","token_type":"Bearer","expires_in":300}`))
	})
	mux.HandleFunc("/openidm/managed/alpha_user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer scoped-tok", r.Header.Get("Authorization"))
		assert.Equal(t, `userName sw "j"`, r.URL.Query().Get("_queryFilter"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[{"userName":"jdoe"}],"resultCount":1}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := auth.Config{TenantURL: ts.URL, ClientID: "c"}.WithDefaults()
	svc := auth.NewServiceWith(cfg, grantedStrategy{tenant: cfg.TenantHost()},
		auth.NewMemoryStore(), auth.NewTokenExchanger(cfg, ts.Client(), logger), logger)

	client := New(ts.URL, svc, ts.Client(), logger)
	result, err := client.Query(context.Background(), "alpha_user", `userName sw "j"`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResultCount)
	require.Len(t, result.Result, 1)
	assert.Equal(t, "jdoe", result.Result[0]["userName"])
}

func TestQueryRequiresObjectType(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, slog.LevelDebug)
	client := New("https://t.example.com", nil, nil, logger)

	_, err := client.Query(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object type is required")
}

func TestGetFetchesObject(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, slog.LevelDebug)

	mux := http.NewServeMux()
	mux.HandleFunc("/am/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"scoped-tok","token_type":"Bearer","expires_in":300}`))
	})
	mux.HandleFunc("/openidm/managed/alpha_user/u-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer scoped-tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_id":"u-1","userName":"jdoe"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := auth.Config{TenantURL: ts.URL, ClientID: "c"}.WithDefaults()
	svc := auth.NewServiceWith(cfg, grantedStrategy{tenant: cfg.TenantHost()},
		auth.NewMemoryStore(), auth.NewTokenExchanger(cfg, ts.Client(), logger), logger)

	client := New(ts.URL, svc, ts.Client(), logger)
	obj, err := client.Get(context.Background(), "alpha_user", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", obj["userName"])
}

func TestQuerySurfacesAPIError(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, slog.LevelDebug)

	mux := http.NewServeMux()
	mux.HandleFunc("/am/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"scoped-tok","token_type":"Bearer","expires_in":300}`))
	})
	mux.HandleFunc("/openidm/managed/alpha_user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":403,"message":"forbidden"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := auth.Config{TenantURL: ts.URL, ClientID: "c"}.WithDefaults()
	svc := auth.NewServiceWith(cfg, grantedStrategy{tenant: cfg.TenantHost()},
		auth.NewMemoryStore(), auth.NewTokenExchanger(cfg, ts.Client(), logger), logger)

	client := New(ts.URL, svc, ts.Client(), logger)
	_, err := client.Query(context.Background(), "alpha_user", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
