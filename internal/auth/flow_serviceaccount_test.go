package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestKey generates an RSA key, writes it as PEM and returns the path
// and the public half for assertion verification.
func writeTestKey(t *testing.T) (string, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(t.TempDir(), "sa-key.pem")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return path, &key.PublicKey
}

func serviceAccountConfig(tenantURL, keyPath string) Config {
	return Config{
		TenantURL:             tenantURL,
		Strategy:              StrategyServiceAccount,
		ServiceAccountID:      "sa-1234",
		ServiceAccountKeyPath: keyPath,
	}
}

func TestServiceAccountFlowMintsToken(t *testing.T) {
	keyPath, pubKey := writeTestKey(t)

	var gotAssertion string
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, jwtBearerGrantType, r.PostForm.Get("grant_type"))
		assert.Equal(t, "service-account", r.PostForm.Get("client_id"))
		assert.Equal(t, "fr:idm:*", r.PostForm.Get("scope"))
		gotAssertion = r.PostForm.Get("assertion")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sa-tok","token_type":"Bearer","expires_in":900}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := serviceAccountConfig(ts.URL, keyPath)
	flow := NewServiceAccountFlow(cfg, ts.Client(), testLogger())

	rec, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
	require.NoError(t, err)
	assert.Equal(t, "sa-tok", rec.AccessToken)
	assert.Equal(t, cfg.TenantHost(), rec.Tenant)

	// Verify the signed assertion's claims.
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(gotAssertion, claims, func(tok *jwt.Token) (interface{}, error) {
		return pubKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "sa-1234", claims.Issuer)
	assert.Equal(t, "sa-1234", claims.Subject)
	assert.Contains(t, claims.Audience, ts.URL+tokenPath)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestServiceAccountFlowFreshJTIPerAssertion(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	var assertions []string
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assertions = append(assertions, r.PostForm.Get("assertion"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sa-tok","token_type":"Bearer","expires_in":900}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	flow := NewServiceAccountFlow(serviceAccountConfig(ts.URL, keyPath), ts.Client(), testLogger())

	// Distinct scope sets force two separate mints.
	_, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
	require.NoError(t, err)
	_, err = flow.Acquire(context.Background(), []string{"fr:am:*"})
	require.NoError(t, err)

	require.Len(t, assertions, 2)
	assert.NotEqual(t, assertions[0], assertions[1])
}

func TestServiceAccountFlowCachesPerScopeSet(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	var mints int32
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mints, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sa-tok","token_type":"Bearer","expires_in":900}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	flow := NewServiceAccountFlow(serviceAccountConfig(ts.URL, keyPath), ts.Client(), testLogger())

	for i := 0; i < 3; i++ {
		_, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&mints), "same scope set reuses the cached token")

	// Scope order must not matter for the cache key.
	_, err := flow.Acquire(context.Background(), []string{"fr:am:*", "fr:idm:*"})
	require.NoError(t, err)
	_, err = flow.Acquire(context.Background(), []string{"fr:idm:*", "fr:am:*"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&mints))
}

func TestServiceAccountFlowConcurrentMintsCollapse(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	var mints int32
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mints, 1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sa-tok","token_type":"Bearer","expires_in":900}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	flow := NewServiceAccountFlow(serviceAccountConfig(ts.URL, keyPath), ts.Client(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
			assert.NoError(t, err)
			assert.Equal(t, "sa-tok", rec.AccessToken)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&mints), "concurrent callers share one mint")
}

func TestServiceAccountFlowInvalidate(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	var mints int32
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mints, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sa-tok","token_type":"Bearer","expires_in":900}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	flow := NewServiceAccountFlow(serviceAccountConfig(ts.URL, keyPath), ts.Client(), testLogger())

	_, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
	require.NoError(t, err)
	flow.Invalidate([]string{"fr:idm:*"})
	_, err = flow.Acquire(context.Background(), []string{"fr:idm:*"})
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&mints))
}

func TestServiceAccountFlowMissingKey(t *testing.T) {
	cfg := serviceAccountConfig("https://tenant.example.com", "/nonexistent/key.pem")
	flow := NewServiceAccountFlow(cfg, nil, testLogger())

	_, err := flow.Acquire(context.Background(), []string{"fr:idm:*"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading service account key")
}
