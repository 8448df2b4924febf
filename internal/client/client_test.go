package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSendsRequiredHeaders(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set(HeaderIdempotencyKey, r.Header.Get(HeaderIdempotencyKey))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cs_1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithAPIKey("secret"), WithAPIVersion("2025-01-01"), WithAcceptLanguage("fr-FR"))
	c.now = func() time.Time { return time.Date(2025, 9, 29, 12, 0, 0, 0, time.FixedZone("X", 3600)) }

	resp, err := c.Do(context.Background(), Request{
		Method:         http.MethodPost,
		Template:       "/checkout_sessions",
		Body:           map[string]any{"items": []map[string]any{{"id": "item_123", "quantity": 1}}},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "/checkout_sessions", got.URL.Path)
	assert.Equal(t, "Bearer secret", got.Header.Get(HeaderAuthorization))
	assert.Equal(t, "key-1", got.Header.Get(HeaderIdempotencyKey))
	assert.NotEmpty(t, got.Header.Get(HeaderRequestID))
	assert.Equal(t, "2025-01-01", got.Header.Get(HeaderAPIVersion))
	assert.Equal(t, "2025-09-29T11:00:00Z", got.Header.Get(HeaderTimestamp))
	assert.Equal(t, "fr-FR", got.Header.Get(HeaderAcceptLanguage))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"items":[{"id":"item_123","quantity":1}]}`, string(gotBody))

	assert.Equal(t, http.StatusCreated, resp.Exchange.Status)
	assert.Equal(t, "POST", resp.Exchange.Method)
	assert.Equal(t, "/checkout_sessions", resp.Exchange.Path)
	assert.JSONEq(t, `{"id":"cs_1"}`, string(resp.Exchange.Body))
	assert.Equal(t, "key-1", resp.Header(HeaderIdempotencyKey))
	assert.Equal(t, gotBody, resp.RequestBody)
	assert.Equal(t, got.Header.Get(HeaderRequestID), resp.RequestID)
}

func TestDoGeneratesKeysAndExpandsTemplate(t *testing.T) {
	var paths []string
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		keys = append(keys, r.Header.Get(HeaderIdempotencyKey))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	for range 2 {
		resp, err := c.Do(context.Background(), Request{
			Method:   http.MethodGet,
			Template: "/checkout_sessions/{checkout_session_id}",
			Params:   map[string]string{"checkout_session_id": "cs 1/x"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Exchange.Status)
		assert.Equal(t, "/checkout_sessions/{checkout_session_id}", resp.Exchange.Path)
		assert.Nil(t, resp.RequestBody)
	}

	assert.Equal(t, []string{"/checkout_sessions/cs%201%2Fx", "/checkout_sessions/cs%201%2Fx"}, paths)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestDoHeaderOverrides(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("secret"))
	_, err := c.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Template: "/checkout_sessions",
		Body:     []byte(`{}`),
		Header:   http.Header{HeaderAuthorization: {""}, "X-Extra": {"1"}},
	})
	require.NoError(t, err)
	assert.Empty(t, got.Get(HeaderAuthorization))
	assert.Equal(t, "1", got.Get("X-Extra"))
}

func TestDoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, WithTimeout(time.Second))
	err := c.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestDoContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL).Do(ctx, Request{Method: http.MethodGet, Template: "/checkout_sessions"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestExpand(t *testing.T) {
	p, err := Expand("/checkout_sessions/{checkout_session_id}/complete", map[string]string{"checkout_session_id": "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, "/checkout_sessions/cs_1/complete", p)

	_, err = Expand("/checkout_sessions/{checkout_session_id}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout_session_id")

	p, err = Expand("/checkout_sessions", nil)
	require.NoError(t, err)
	assert.Equal(t, "/checkout_sessions", p)
}
