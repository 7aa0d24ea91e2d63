package network_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/network"
)

func getRoot(t *testing.T, client *network.Client) (*domain.Response, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return client.Fetch(context.Background(), req)
}

func TestNew_RejectsBadOrigin(t *testing.T) {
	for _, origin := range []string{"", "ftp://example.com", "http://", "://bad"} {
		_, err := network.New(origin, network.Options{})
		assert.Error(t, err, origin)
	}
}

func TestClient_Fetch(t *testing.T) {
	var gotPath, gotQuery, gotConnHeader, gotCustom string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotConnHeader = r.Header.Get("Keep-Alive")
		gotCustom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "<html>root</html>")
	}))
	defer origin.Close()

	client, err := network.New(origin.URL, network.Options{Timeout: time.Second})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://front.example/marcar?tipo=entrada", nil)
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("X-Custom", "yes")

	resp, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/marcar", gotPath)
	assert.Equal(t, "tipo=entrada", gotQuery)
	assert.Empty(t, gotConnHeader, "hop-by-hop request headers are stripped")
	assert.Equal(t, "yes", gotCustom)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "/marcar?tipo=entrada", resp.URL)
	assert.Equal(t, "<html>root</html>", string(resp.Body))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, domain.SourceNetwork, resp.Source)
}

func TestClient_FetchReturnsErrorStatuses(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer origin.Close()

	client, err := network.New(origin.URL, network.Options{})
	require.NoError(t, err)

	resp, err := getRoot(t, client)
	require.NoError(t, err, "an HTTP error status is still a completed fetch")
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.False(t, resp.OK())
}

func TestClient_FetchDoesNotFollowRedirects(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/accounts/login/", http.StatusFound)
	}))
	defer origin.Close()

	client, err := network.New(origin.URL, network.Options{})
	require.NoError(t, err)

	resp, err := getRoot(t, client)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/accounts/login/", resp.Header.Get("Location"))
}

func TestClient_FetchNetworkError(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	url := origin.URL
	origin.Close()

	client, err := network.New(url, network.Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = getRoot(t, client)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClient_FetchBodyLimit(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer origin.Close()

	client, err := network.New(origin.URL, network.Options{MaxBodyBytes: 16})
	require.NoError(t, err)

	_, err = getRoot(t, client)
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
}

func TestClient_FetchForwardsBody(t *testing.T) {
	var got string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = r.Method + " " + string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer origin.Close()

	client, err := network.New(origin.URL+"/", network.Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/marcar", strings.NewReader(`{"tipo":"entrada"}`))
	resp, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `POST {"tipo":"entrada"}`, got)
}

func TestClient_FetchKeepsEscapedPath(t *testing.T) {
	var gotRawPath string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawPath = r.URL.EscapedPath()
		_, _ = io.WriteString(w, "file")
	}))
	defer origin.Close()

	client, err := network.New(origin.URL+"/base/", network.Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/files/a%2Fb?v=1", nil)
	resp, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/base/files/a%2Fb", gotRawPath)
	assert.Equal(t, "/files/a%2Fb?v=1", resp.URL)
}

func TestClient_FetchHeadKeepsContentLength(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, "hello world")
		}
	}))
	defer origin.Close()

	client, err := network.New(origin.URL, network.Options{})
	require.NoError(t, err)

	resp, err := client.Fetch(context.Background(), httptest.NewRequest(http.MethodHead, "/", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "11", resp.Header.Get("Content-Length"))

	resp, err = client.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(resp.Body))
	assert.Empty(t, resp.Header.Get("Content-Length"), "GET bodies are measured by the writer")
}
