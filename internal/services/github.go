package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/commitron/commitron/internal/errors"
)

const defaultGitHubBaseURL = "https://api.github.com"

// GitHubService is a minimal client for the repository contents API. It is the
// only component that ever sees the token value, and it never logs it.
type GitHubService struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// RepoFile is a decoded file fetched from a repository, plus the blob SHA
// required to update it.
type RepoFile struct {
	Content []byte
	SHA     string
}

// Committer identifies the author of commits made through the API.
type Committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type updateFileRequest struct {
	Message   string    `json:"message"`
	Content   string    `json:"content"`
	Branch    string    `json:"branch"`
	SHA       string    `json:"sha,omitempty"`
	Committer Committer `json:"committer"`
}

type updateFileResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func NewGitHubService(token string) *GitHubService {
	return &GitHubService{
		token:      token,
		baseURL:    defaultGitHubBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGitHubServiceWithBaseURL is used by tests to point the client at a stub
// server.
func NewGitHubServiceWithBaseURL(token, baseURL string) *GitHubService {
	s := NewGitHubService(token)
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// GetFile fetches a file from the repository at the given ref. A missing file
// returns ErrFileNotFound so callers can distinguish first-run state.
func (g *GitHubService) GetFile(ctx context.Context, owner, repo, path, ref string) (*RepoFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", g.baseURL, owner, repo, path, ref)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch file: status %d, body: %s", resp.StatusCode, string(body))
	}

	var contents contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&contents); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}

	// The contents API base64-encodes file bodies with embedded newlines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}

	return &RepoFile{
		Content: decoded,
		SHA:     contents.SHA,
	}, nil
}

// PutFile creates or updates a file on the given branch in a single commit.
// sha must be the current blob SHA when updating, or empty when creating.
func (g *GitHubService) PutFile(ctx context.Context, owner, repo, path, branch string, content []byte, sha, message string, committer Committer) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.baseURL, owner, repo, path)

	payload := updateFileRequest{
		Message:   message,
		Content:   base64.StdEncoding.EncodeToString(content),
		Branch:    branch,
		SHA:       sha,
		Committer: committer,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal update request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to update file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to update file: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result updateFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode update response: %w", err)
	}

	return result.Commit.SHA, nil
}

func (g *GitHubService) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
