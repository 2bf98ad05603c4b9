package httpjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/clientcredentials"
)

func TestClientCredentialsFetcher(t *testing.T) {
	var grants atomic.Int32
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "invoices:read", r.PostForm.Get("scope"))
		grants.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer idp.Close()

	fetch := ClientCredentials(&clientcredentials.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     idp.URL,
		Scopes:       []string{"invoices:read"},
	}, idp.Client())
	ts := NewCachingTokenSource("billing", fetch, NewMemoryTokenCache(), time.Minute)

	for range 2 {
		v, err := ts.Token(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok-1", v)
	}
	require.EqualValues(t, 1, grants.Load())
}

func TestClientCredentialsWithoutSecret(t *testing.T) {
	fetch := ClientCredentials(&clientcredentials.Config{ClientID: "id", TokenURL: "http://127.0.0.1:1"}, nil)
	_, err := fetch(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
}

func TestClientCredentialsGrantFailure(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer idp.Close()

	fetch := ClientCredentials(&clientcredentials.Config{ClientID: "id", ClientSecret: "bad", TokenURL: idp.URL}, nil)
	_, err := fetch(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoToken)
}
