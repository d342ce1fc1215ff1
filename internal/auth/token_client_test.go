package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenClientSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600,"scope":"fr:idm:*"}`))
	}))
	defer ts.Close()

	client := newTokenClient(ts.Client())
	form := url.Values{"grant_type": {"authorization_code"}}
	tok, err := client.Do(context.Background(), ts.URL, form)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.Equal(t, 3600, tok.ExpiresIn)
}

func TestTokenClientOAuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer ts.Close()

	client := newTokenClient(ts.Client())
	_, err := client.Do(context.Background(), ts.URL, url.Values{})
	require.Error(t, err)

	var epErr *EndpointError
	require.True(t, errors.As(err, &epErr))
	assert.Equal(t, http.StatusBadRequest, epErr.Status)
	assert.Equal(t, "invalid_grant", epErr.Code)
	assert.Equal(t, "code expired", epErr.Description)
}

func TestTokenClientNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer ts.Close()

	client := newTokenClient(ts.Client())
	_, err := client.Do(context.Background(), ts.URL, url.Values{})

	var epErr *EndpointError
	require.True(t, errors.As(err, &epErr))
	assert.Equal(t, http.StatusBadGateway, epErr.Status)
	assert.Empty(t, epErr.Code)
	assert.Contains(t, epErr.Body, "upstream unavailable")
}

func TestTokenClientMissingAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer ts.Close()

	client := newTokenClient(ts.Client())
	_, err := client.Do(context.Background(), ts.URL, url.Values{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing access_token")
}
