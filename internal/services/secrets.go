package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	apperrors "github.com/commitron/commitron/internal/errors"
)

// secretsAPI is the subset of the Secrets Manager client the holder needs.
type secretsAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// SecretHolder owns the single GitHub token secret. It exposes only the
// secret's ARN to dependents; the plaintext value never leaves PutValue's
// input and is never logged.
type SecretHolder struct {
	client secretsAPI
}

func NewSecretHolder(client secretsAPI) *SecretHolder {
	return &SecretHolder{client: client}
}

// EnsureSecret creates the named secret if it does not exist and returns its
// ARN. An existing secret is adopted unchanged so its ARN stays stable across
// provisioning runs and token rotations.
func (s *SecretHolder) EnsureSecret(ctx context.Context, name string, tags map[string]string) (string, error) {
	logger := zerolog.Ctx(ctx)

	describe, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err == nil {
		return aws.ToString(describe.ARN), nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("failed to describe secret %s: %w", name, err)
	}

	created, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:        aws.String(name),
		Description: aws.String("GitHub token for the commitron daily-commit function"),
		Tags:        secretTags(tags),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create secret %s: %w", name, err)
	}

	logger.Info().Str("secret", name).Msg("Created secret")
	return aws.ToString(created.ARN), nil
}

// PutValue stores a new token value and returns the version ID. The client
// request token makes retries of the same rotation idempotent.
func (s *SecretHolder) PutValue(ctx context.Context, secretID, value string) (string, error) {
	if value == "" {
		return "", apperrors.ErrSecretValueEmpty
	}

	result, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		SecretString:       aws.String(value),
		ClientRequestToken: aws.String("commitron-" + ksuid.New().String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put secret value for %s: %w", secretID, err)
	}

	zerolog.Ctx(ctx).Info().Str("secret", secretID).Msg("Stored new secret version")
	return aws.ToString(result.VersionId), nil
}

// ScheduleDeletion soft-deletes the secret with a recovery window. The provider
// destroys it permanently only after the window elapses.
func (s *SecretHolder) ScheduleDeletion(ctx context.Context, secretID string, recoveryWindowDays int32) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(secretID),
		RecoveryWindowInDays: aws.Int64(int64(recoveryWindowDays)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to schedule deletion of secret %s: %w", secretID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("secret", secretID).
		Int32("recovery_window_days", recoveryWindowDays).
		Msg("Scheduled secret deletion")
	return nil
}

func secretTags(tags map[string]string) []types.Tag {
	var result []types.Tag
	for _, k := range sortedKeys(tags) {
		result = append(result, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return result
}
