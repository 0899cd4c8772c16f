package helpers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchWithRandomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The fetch must look like an ordinary browser request
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	body, err := FetchWithRandomHeaders(server.URL)
	assert.NoError(t, err)

	data, err := io.ReadAll(body)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "ok")
}

func TestFetchWithRandomHeadersRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := FetchWithRandomHeaders(server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetchWithRandomHeadersErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := FetchWithRandomHeaders(server.URL)
	assert.Error(t, err)
}

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("/book/checkout/42", "/", 2)
	assert.NoError(t, err)
	assert.Equal(t, "checkout", part)

	_, err = GetSplitPart("/book", "/", 5)
	assert.Error(t, err)
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "/book/checkout", PathOf("https://example.com/book/checkout?step=2"))
	assert.Equal(t, "", PathOf("https://example.com"))
}

func TestQueryOf(t *testing.T) {
	q := QueryOf("https://example.com/book?step=2&room=12")
	assert.Equal(t, "2", q.Get("step"))
	assert.Equal(t, "12", q.Get("room"))
}
