package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/commitron/commitron/internal/di"
	apperrors "github.com/commitron/commitron/internal/errors"
	"github.com/commitron/commitron/internal/services"
)

const (
	committerName  = "Commitron Bot"
	committerEmail = "bot@commitron.com"
)

var requiredEnvVars = []string{"GITHUB_REPO", "FILE_PATH", "BRANCH", "AWS_SECRET_ID"}

// Response mirrors the API-gateway-style envelope the original job reported.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type responseBody struct {
	Message    string `json:"message"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

type secretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// githubAPI is satisfied by services.GitHubService; tests substitute a stub.
type githubAPI interface {
	GetFile(ctx context.Context, owner, repo, path, ref string) (*services.RepoFile, error)
	PutFile(ctx context.Context, owner, repo, path, branch string, content []byte, sha, message string, committer services.Committer) (string, error)
}

type Handler struct {
	secrets   secretsGetter
	newGitHub func(token string) githubAPI
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Handler{
		secrets: secretsmanager.NewFromConfig(cfg),
		newGitHub: func(token string) githubAPI {
			return services.NewGitHubService(token)
		},
	}, nil
}

// HandleEvent runs one daily commit: fetch the token, read the counter file,
// increment it, and push the new value as a single commit. Errors are folded
// into a 500 response so the platform does not retry a failed day; the next
// scheduled tick is independent.
func (h *Handler) HandleEvent(ctx context.Context, event json.RawMessage) (Response, error) {
	logger := zerolog.Ctx(ctx)

	if err := checkEnv(); err != nil {
		return errorResponse(ctx, err), nil
	}

	githubRepo := os.Getenv("GITHUB_REPO")
	filePath := os.Getenv("FILE_PATH")
	branch := os.Getenv("BRANCH")
	secretID := os.Getenv("AWS_SECRET_ID")

	owner, repo, err := splitRepo(githubRepo)
	if err != nil {
		return errorResponse(ctx, err), nil
	}

	token, err := h.getToken(ctx, secretID)
	if err != nil {
		return errorResponse(ctx, err), nil
	}

	github := h.newGitHub(token)

	counter, blobSHA, err := nextCounter(ctx, github, owner, repo, filePath, branch)
	if err != nil {
		return errorResponse(ctx, err), nil
	}

	message := fmt.Sprintf("Automated commit: Increment counter to %d", counter)
	commitSHA, err := github.PutFile(ctx, owner, repo, filePath, branch,
		[]byte(strconv.Itoa(counter)), blobSHA, message,
		services.Committer{Name: committerName, Email: committerEmail},
	)
	if err != nil {
		return errorResponse(ctx, err), nil
	}

	logger.Info().
		Int("counter", counter).
		Str("commit", commitSHA).
		Msg("Pushed counter commit")

	body, _ := json.Marshal(responseBody{
		Message:    fmt.Sprintf("Counter updated to %d", counter),
		Repository: githubRepo,
		Branch:     branch,
	})
	return Response{StatusCode: 200, Body: string(body)}, nil
}

// getToken fetches the GitHub token by secret ARN. The value is returned to
// the caller only; it is never logged.
func (h *Handler) getToken(ctx context.Context, secretID string) (string, error) {
	result, err := h.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}

	if result.SecretString == nil || *result.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	return *result.SecretString, nil
}

// nextCounter reads the current counter and returns the incremented value plus
// the blob SHA needed for the update. A missing file starts the counter at 1;
// unparseable content resets it to 1.
func nextCounter(ctx context.Context, github githubAPI, owner, repo, path, branch string) (int, string, error) {
	file, err := github.GetFile(ctx, owner, repo, path, branch)
	if err != nil {
		if errors.Is(err, apperrors.ErrFileNotFound) {
			return 1, "", nil
		}
		return 0, "", err
	}

	content := strings.TrimSpace(string(file.Content))
	current, parseErr := strconv.Atoi(content)
	if parseErr != nil {
		zerolog.Ctx(ctx).Warn().
			Str("content", content).
			Msg("Invalid counter value in file, resetting to 1")
		return 1, file.SHA, nil
	}

	return current + 1, file.SHA, nil
}

func checkEnv() error {
	var missing []string
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingEnvVariables, strings.Join(missing, ", "))
	}
	return nil
}

func splitRepo(githubRepo string) (owner, repo string, err error) {
	parts := strings.Split(githubRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("GITHUB_REPO must be in the format owner/name, got %q", githubRepo)
	}
	return parts[0], parts[1], nil
}

func errorResponse(ctx context.Context, err error) Response {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Daily commit failed")

	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Response{StatusCode: 500, Body: string(body)}
}

func handleRunCommand(c *cli.Context) error {
	logger := di.ProvideLogger()

	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		ctx := context.Background()
		handler, err := NewHandler(ctx)
		if err != nil {
			return fmt.Errorf("failed to create handler: %w", err)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, event json.RawMessage) (Response, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleEvent(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return nil
	}

	// CLI mode for local testing
	ctx := logger.WithContext(context.Background())
	handler, err := NewHandler(ctx)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	response, err := handler.HandleEvent(ctx, nil)
	if err != nil {
		return err
	}

	fmt.Println(response.Body)
	if response.StatusCode != 200 {
		return fmt.Errorf("daily commit failed with status %d", response.StatusCode)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:           "committer",
		Usage:          "Daily counter-commit function",
		DefaultCommand: "run",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one daily commit (reads configuration from the environment)",
				Action: handleRunCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
