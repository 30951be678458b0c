package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/commitron/commitron/internal/errors"
)

func TestGetFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "/repos/alice/counter-repo/contents/counter.txt", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))

		// The contents API wraps base64 bodies at 60 columns.
		resp := map[string]string{
			"content":  "NDI=\n",
			"encoding": "base64",
			"sha":      "blob-sha-1",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGitHubServiceWithBaseURL("test-token", server.URL)

	file, err := client.GetFile(context.Background(), "alice", "counter-repo", "counter.txt", "main")
	require.NoError(t, err)

	assert.Equal(t, "42", string(file.Content))
	assert.Equal(t, "blob-sha-1", file.SHA)
}

func TestGetFile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewGitHubServiceWithBaseURL("test-token", server.URL)

	_, err := client.GetFile(context.Background(), "alice", "counter-repo", "counter.txt", "main")
	assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
}

func TestPutFile(t *testing.T) {
	var captured updateFileRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "/repos/alice/counter-repo/contents/counter.txt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"commit":{"sha":"commit-sha-1"}}`))
	}))
	defer server.Close()

	client := NewGitHubServiceWithBaseURL("test-token", server.URL)

	commitSHA, err := client.PutFile(
		context.Background(),
		"alice", "counter-repo", "counter.txt", "main",
		[]byte("43"), "blob-sha-1",
		"Automated commit: Increment counter to 43",
		Committer{Name: "Commitron Bot", Email: "bot@commitron.com"},
	)
	require.NoError(t, err)

	assert.Equal(t, "commit-sha-1", commitSHA)
	assert.Equal(t, "main", captured.Branch)
	assert.Equal(t, "blob-sha-1", captured.SHA)
	assert.Equal(t, "Automated commit: Increment counter to 43", captured.Message)
	assert.Equal(t, "Commitron Bot", captured.Committer.Name)

	decoded, err := base64.StdEncoding.DecodeString(captured.Content)
	require.NoError(t, err)
	assert.Equal(t, "43", string(decoded))
}

func TestPutFile_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"is at blob-sha-2 but expected blob-sha-1"}`))
	}))
	defer server.Close()

	client := NewGitHubServiceWithBaseURL("test-token", server.URL)

	_, err := client.PutFile(
		context.Background(),
		"alice", "counter-repo", "counter.txt", "main",
		[]byte("43"), "blob-sha-1", "msg",
		Committer{Name: "Commitron Bot", Email: "bot@commitron.com"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}
