package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *AnthropicClient {
	t.Helper()
	c, err := NewAnthropicClient(AnthropicConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"#File a.py:\n"},{"type":"text","text":"x = 1\n"}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).Complete(context.Background(), "do it", 1234)
	require.NoError(t, err)
	assert.Equal(t, "#File a.py:\nx = 1\n", text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 1234, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "do it", got.Messages[0].Content)
}

func TestAnthropic_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAnthropic_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", 0)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ProviderAnthropic, se.Provider)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnthropic_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", 0)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "503")
}

func TestAnthropic_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", 0)
	assert.True(t, errors.Is(err, ErrEmptyResponse), "got %v", err)
}

func TestAnthropic_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Complete(ctx, "p", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(context.Background(), Config{Provider: "gemini"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(context.Background(), Config{Provider: "nope", APIKey: "k"})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
}
