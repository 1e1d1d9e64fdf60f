package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-oidc-client/transport"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, transport.UserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com"}`))
	}))
	defer srv.Close()

	var out struct {
		Issuer string `json:"issuer"`
	}
	err := transport.GetJSON(context.Background(), transport.New(), srv.URL, &out)
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com", out.Issuer)
}

func TestGetJSONMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	err := transport.GetJSON(context.Background(), transport.New(), srv.URL, &struct{}{})
	var protoErr *transport.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestGetJSONNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // guaranteed connection refused

	err := transport.GetJSON(context.Background(), transport.New(), srv.URL, &struct{}{})
	var netErr *transport.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestPostFormReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	status, body, err := transport.PostForm(context.Background(), transport.New(), srv.URL, url.Values{
		"grant_type": {"authorization_code"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"invalid_grant"}`, string(body))
}

func TestRetryPolicyAppliesToGETOnly(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{}`))
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := transport.New(transport.WithRetryPolicy(func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		return b
	}, 5))

	err := transport.GetJSON(context.Background(), client, srv.URL, &struct{}{})
	require.NoError(t, err)
	require.Equal(t, int32(3), gets.Load())

	status, _, err := transport.PostForm(context.Background(), client, srv.URL, url.Values{})
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, int32(1), posts.Load())
}
