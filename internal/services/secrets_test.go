package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/commitron/commitron/internal/errors"
)

type fakeSecretsClient struct {
	existingARN string

	describeCalls int
	createCalls   int
	putCalls      int
	deleteCalls   int

	lastPut    *secretsmanager.PutSecretValueInput
	lastDelete *secretsmanager.DeleteSecretInput
	deleteErr  error
}

func (f *fakeSecretsClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	f.describeCalls++
	if f.existingARN == "" {
		return nil, &types.ResourceNotFoundException{}
	}
	return &secretsmanager.DescribeSecretOutput{ARN: aws.String(f.existingARN)}, nil
}

func (f *fakeSecretsClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.createCalls++
	arn := "arn:aws:secretsmanager:us-east-1:123456789012:secret:" + aws.ToString(params.Name) + "-AbCdEf"
	return &secretsmanager.CreateSecretOutput{ARN: aws.String(arn)}, nil
}

func (f *fakeSecretsClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.putCalls++
	f.lastPut = params
	return &secretsmanager.PutSecretValueOutput{VersionId: aws.String("version-1")}, nil
}

func (f *fakeSecretsClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.deleteCalls++
	f.lastDelete = params
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &secretsmanager.DeleteSecretOutput{}, nil
}

func TestEnsureSecret_CreatesWhenAbsent(t *testing.T) {
	client := &fakeSecretsClient{}
	holder := NewSecretHolder(client)

	arn, err := holder.EnsureSecret(context.Background(), "commitron/dev/github-token", map[string]string{"ManagedBy": "commitron"})
	require.NoError(t, err)

	assert.Contains(t, arn, "commitron/dev/github-token")
	assert.Equal(t, 1, client.describeCalls)
	assert.Equal(t, 1, client.createCalls)
}

func TestEnsureSecret_AdoptsExisting(t *testing.T) {
	existing := "arn:aws:secretsmanager:us-east-1:123456789012:secret:commitron/prod/github-token-XyZ123"
	client := &fakeSecretsClient{existingARN: existing}
	holder := NewSecretHolder(client)

	arn, err := holder.EnsureSecret(context.Background(), "commitron/prod/github-token", nil)
	require.NoError(t, err)

	// The ARN stays stable across runs; no second secret is created.
	assert.Equal(t, existing, arn)
	assert.Equal(t, 0, client.createCalls)
}

func TestPutValue_RejectsEmptyValue(t *testing.T) {
	client := &fakeSecretsClient{}
	holder := NewSecretHolder(client)

	_, err := holder.PutValue(context.Background(), "commitron/dev/github-token", "")
	assert.ErrorIs(t, err, apperrors.ErrSecretValueEmpty)

	// Validation happens before any provider call.
	assert.Equal(t, 0, client.putCalls)
}

func TestPutValue_StoresValueWithRequestToken(t *testing.T) {
	client := &fakeSecretsClient{}
	holder := NewSecretHolder(client)

	versionID, err := holder.PutValue(context.Background(), "commitron/dev/github-token", "ghp_token")
	require.NoError(t, err)

	assert.Equal(t, "version-1", versionID)
	require.NotNil(t, client.lastPut)
	assert.Equal(t, "ghp_token", aws.ToString(client.lastPut.SecretString))

	token := aws.ToString(client.lastPut.ClientRequestToken)
	assert.Contains(t, token, "commitron-")
	assert.GreaterOrEqual(t, len(token), 32, "request token must satisfy the provider's minimum length")
}

func TestScheduleDeletion(t *testing.T) {
	t.Run("passes recovery window", func(t *testing.T) {
		client := &fakeSecretsClient{}
		holder := NewSecretHolder(client)

		err := holder.ScheduleDeletion(context.Background(), "commitron/dev/github-token", 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), aws.ToInt64(client.lastDelete.RecoveryWindowInDays))
	})

	t.Run("missing secret is not an error", func(t *testing.T) {
		client := &fakeSecretsClient{deleteErr: &types.ResourceNotFoundException{}}
		holder := NewSecretHolder(client)

		assert.NoError(t, holder.ScheduleDeletion(context.Background(), "gone", 7))
	})
}
