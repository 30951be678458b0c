package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	apperrors "github.com/commitron/commitron/internal/errors"
	"github.com/commitron/commitron/internal/policy"
)

const (
	// PermissionsPolicyName is the single inline policy attached to the
	// execution role.
	PermissionsPolicyName = "commitron-exec"

	lambdaServicePrincipal = "lambda.amazonaws.com"
)

type iamAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IdentityBinder manages the function's execution role: a trust policy that
// only the Lambda service may assume, plus exactly two permission statements
// (secret read pinned to one ARN, log write on the account logs wildcard).
// Every generated document passes the least-privilege policy check before it
// is submitted.
type IdentityBinder struct {
	client    iamAPI
	stsClient stsAPI
	validator *policy.Validator
}

func NewIdentityBinder(client iamAPI, stsClient stsAPI, validator *policy.Validator) *IdentityBinder {
	return &IdentityBinder{
		client:    client,
		stsClient: stsClient,
		validator: validator,
	}
}

// GetAWSAccountID retrieves the AWS account ID of the active credentials.
func (b *IdentityBinder) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := b.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// EnsureRole creates the execution role if absent, or converges the trust
// policy if it already exists. Returns the role ARN.
func (b *IdentityBinder) EnsureRole(ctx context.Context, roleName string, tags map[string]string) (string, error) {
	logger := zerolog.Ctx(ctx)
	trustPolicy := TrustPolicyDocument()

	getResult, err := b.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err == nil && getResult.Role != nil {
		_, err = b.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyDocument: aws.String(trustPolicy),
		})
		if err != nil {
			return "", fmt.Errorf("failed to update trust policy: %w", err)
		}
		return aws.ToString(getResult.Role.Arn), nil
	}

	if err != nil && !isNoSuchEntity(err) {
		return "", fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	created, err := b.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
		Description:              aws.String("Execution role for the commitron daily-commit function"),
		Tags:                     iamTags(tags),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create role: %w", err)
	}

	logger.Info().Str("role", roleName).Msg("Created execution role")
	return aws.ToString(created.Role.Arn), nil
}

// AttachPermissions binds the inline permissions policy to the role. The
// document is validated against the embedded least-privilege policy first;
// a rejected document is never submitted.
func (b *IdentityBinder) AttachPermissions(ctx context.Context, roleName, secretARN, region, accountID string) error {
	document, err := PermissionsDocument(secretARN, region, accountID)
	if err != nil {
		return err
	}

	result, err := b.validator.ValidateDocument(ctx, document, secretARN)
	if err != nil {
		return fmt.Errorf("failed to validate permissions document: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s", apperrors.ErrPolicyRejected, strings.Join(result.Violations, "; "))
	}

	// PutRolePolicy is idempotent
	_, err = b.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(PermissionsPolicyName),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		return fmt.Errorf("failed to attach policy to role: %w", err)
	}

	return nil
}

// DeleteRole removes the inline policy and the role itself.
func (b *IdentityBinder) DeleteRole(ctx context.Context, roleName string) error {
	_, err := b.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(PermissionsPolicyName),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to delete role policy: %w", err)
	}

	_, err = b.client.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("failed to delete role %s: %w", roleName, err)
	}

	return nil
}

// TrustPolicyDocument returns the trust policy allowing only the Lambda
// service to assume the execution role.
func TrustPolicyDocument() string {
	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Principal": map[string]interface{}{
					"Service": lambdaServicePrincipal,
				},
				"Action": "sts:AssumeRole",
			},
		},
	}

	docJSON, _ := json.Marshal(doc)
	return string(docJSON)
}

// PermissionsDocument builds the two-statement inline policy: secret read
// scoped to exactly the one secret ARN, and log write on the account logs
// wildcard (log group and stream names are not known before first invocation).
func PermissionsDocument(secretARN, region, accountID string) (string, error) {
	if secretARN == "" {
		return "", fmt.Errorf("secret ARN is required for the permissions document")
	}

	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Sid":    "ReadGitHubToken",
				"Effect": "Allow",
				"Action": []string{
					"secretsmanager:GetSecretValue",
				},
				"Resource": secretARN,
			},
			{
				"Sid":    "WriteLogs",
				"Effect": "Allow",
				"Action": []string{
					"logs:CreateLogGroup",
					"logs:CreateLogStream",
					"logs:PutLogEvents",
				},
				"Resource": fmt.Sprintf("arn:aws:logs:%s:%s:*", region, accountID),
			},
		},
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions document: %w", err)
	}
	return string(docJSON), nil
}

func isNoSuchEntity(err error) bool {
	var noSuchEntity *iamtypes.NoSuchEntityException
	if errors.As(err, &noSuchEntity) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchEntity"
}

func iamTags(tags map[string]string) []iamtypes.Tag {
	var result []iamtypes.Tag
	for _, k := range sortedKeys(tags) {
		result = append(result, iamtypes.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return result
}
