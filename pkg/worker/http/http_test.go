package http_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	nethttp "net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/worker"
	httpworker "github.com/opsai/opsai/pkg/worker/http"
)

func TestFetchURLSuccess(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Write([]byte("Hello, World!"))
	}))
	defer srv.Close()

	w := httpworker.New(5 * time.Second)
	result := w.Execute(context.Background(), "fetch_url", worker.Args{
		"url": worker.String(srv.URL),
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "Hello, World!")
}

func TestFetchURLInvalid(t *testing.T) {
	w := httpworker.New(5 * time.Second)
	result := w.Execute(context.Background(), "fetch_url", worker.Args{
		"url": worker.String("not-a-valid-url"),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Invalid URL")
}

func TestFetchGithubReadmeInvalidURL(t *testing.T) {
	w := httpworker.New(5 * time.Second)
	result := w.Execute(context.Background(), "fetch_github_readme", worker.Args{
		"repo_url": worker.String("https://gitlab.com/user/repo"),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Invalid GitHub URL")
}

func TestUnknownAction(t *testing.T) {
	w := httpworker.New(5 * time.Second)
	result := w.Execute(context.Background(), "bogus", worker.Args{})
	assert.Contains(t, result.Message, "Unknown action")
}
