package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commitron/commitron/internal/policy"
)

const testSecretARN = "arn:aws:secretsmanager:us-east-1:123456789012:secret:commitron/prod/github-token-AbCdEf"

type fakeIAMClient struct {
	existingRoleARN string
	getRoleErr      error

	createCalls      int
	updateTrustCalls int
	putPolicyCalls   int

	lastPutPolicy *iam.PutRolePolicyInput
}

func (f *fakeIAMClient) GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if f.getRoleErr != nil {
		return nil, f.getRoleErr
	}
	if f.existingRoleARN == "" {
		return nil, &iamtypes.NoSuchEntityException{}
	}
	return &iam.GetRoleOutput{Role: &iamtypes.Role{Arn: aws.String(f.existingRoleARN)}}, nil
}

func (f *fakeIAMClient) CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.createCalls++
	arn := "arn:aws:iam::123456789012:role/" + aws.ToString(params.RoleName)
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{Arn: aws.String(arn)}}, nil
}

func (f *fakeIAMClient) UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	f.updateTrustCalls++
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

func (f *fakeIAMClient) PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.putPolicyCalls++
	f.lastPutPolicy = params
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIAMClient) DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *fakeIAMClient) DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	return &iam.DeleteRoleOutput{}, nil
}

type fakeSTSClient struct {
	accountID string
}

func (f *fakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.accountID)}, nil
}

func newTestBinder(t *testing.T, client *fakeIAMClient) *IdentityBinder {
	t.Helper()
	validator, err := policy.NewValidator()
	require.NoError(t, err)
	return NewIdentityBinder(client, &fakeSTSClient{accountID: "123456789012"}, validator)
}

func TestTrustPolicyDocument(t *testing.T) {
	var doc struct {
		Version   string `json:"Version"`
		Statement []struct {
			Effect    string `json:"Effect"`
			Action    string `json:"Action"`
			Principal struct {
				Service string `json:"Service"`
			} `json:"Principal"`
		} `json:"Statement"`
	}
	require.NoError(t, json.Unmarshal([]byte(TrustPolicyDocument()), &doc))

	// A single trust statement, assumable only by the Lambda service.
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "Allow", doc.Statement[0].Effect)
	assert.Equal(t, "sts:AssumeRole", doc.Statement[0].Action)
	assert.Equal(t, "lambda.amazonaws.com", doc.Statement[0].Principal.Service)
}

func TestPermissionsDocument_LeastPrivilege(t *testing.T) {
	document, err := PermissionsDocument(testSecretARN, "us-east-1", "123456789012")
	require.NoError(t, err)

	var doc struct {
		Statement []struct {
			Effect   string   `json:"Effect"`
			Action   []string `json:"Action"`
			Resource string   `json:"Resource"`
		} `json:"Statement"`
	}
	require.NoError(t, json.Unmarshal([]byte(document), &doc))
	require.Len(t, doc.Statement, 2)

	allowed := map[string]bool{
		"secretsmanager:GetSecretValue": true,
		"logs:CreateLogGroup":           true,
		"logs:CreateLogStream":          true,
		"logs:PutLogEvents":             true,
	}

	for _, stmt := range doc.Statement {
		assert.Equal(t, "Allow", stmt.Effect)
		for _, action := range stmt.Action {
			assert.True(t, allowed[action], "action %q is outside the least-privilege set", action)
		}
	}

	// Secret read is scoped to exactly the one secret ARN, no wildcard.
	assert.Equal(t, []string{"secretsmanager:GetSecretValue"}, doc.Statement[0].Action)
	assert.Equal(t, testSecretARN, doc.Statement[0].Resource)

	// The log statement is the only place a wildcard appears, account-scoped.
	assert.Equal(t, "arn:aws:logs:us-east-1:123456789012:*", doc.Statement[1].Resource)
}

func TestPermissionsDocument_RequiresSecretARN(t *testing.T) {
	_, err := PermissionsDocument("", "us-east-1", "123456789012")
	assert.Error(t, err)
}

func TestEnsureRole_CreatesWhenAbsent(t *testing.T) {
	client := &fakeIAMClient{}
	binder := newTestBinder(t, client)

	arn, err := binder.EnsureRole(context.Background(), "commitron-dev-exec", map[string]string{"ManagedBy": "commitron"})
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/commitron-dev-exec", arn)
	assert.Equal(t, 1, client.createCalls)
	assert.Equal(t, 0, client.updateTrustCalls)
}

func TestEnsureRole_CreatesOnUntypedNoSuchEntity(t *testing.T) {
	// IAM sometimes surfaces NoSuchEntity as a generic API error instead of
	// the modeled exception type.
	client := &fakeIAMClient{getRoleErr: &smithy.GenericAPIError{Code: "NoSuchEntity"}}
	binder := newTestBinder(t, client)

	arn, err := binder.EnsureRole(context.Background(), "commitron-dev-exec", nil)
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/commitron-dev-exec", arn)
	assert.Equal(t, 1, client.createCalls)
}

func TestEnsureRole_PropagatesUnrelatedError(t *testing.T) {
	client := &fakeIAMClient{getRoleErr: &smithy.GenericAPIError{Code: "AccessDenied"}}
	binder := newTestBinder(t, client)

	_, err := binder.EnsureRole(context.Background(), "commitron-dev-exec", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, client.createCalls)
}

func TestEnsureRole_ConvergesTrustPolicyWhenPresent(t *testing.T) {
	existing := "arn:aws:iam::123456789012:role/commitron-prod-exec"
	client := &fakeIAMClient{existingRoleARN: existing}
	binder := newTestBinder(t, client)

	arn, err := binder.EnsureRole(context.Background(), "commitron-prod-exec", nil)
	require.NoError(t, err)

	assert.Equal(t, existing, arn)
	assert.Equal(t, 0, client.createCalls)
	assert.Equal(t, 1, client.updateTrustCalls)
}

func TestAttachPermissions_SubmitsValidatedDocument(t *testing.T) {
	client := &fakeIAMClient{}
	binder := newTestBinder(t, client)

	err := binder.AttachPermissions(context.Background(), "commitron-prod-exec", testSecretARN, "us-east-1", "123456789012")
	require.NoError(t, err)

	require.NotNil(t, client.lastPutPolicy)
	assert.Equal(t, PermissionsPolicyName, aws.ToString(client.lastPutPolicy.PolicyName))
	assert.Contains(t, aws.ToString(client.lastPutPolicy.PolicyDocument), testSecretARN)
}

func TestAttachPermissions_RejectsWithoutSecretARN(t *testing.T) {
	client := &fakeIAMClient{}
	binder := newTestBinder(t, client)

	err := binder.AttachPermissions(context.Background(), "commitron-prod-exec", "", "us-east-1", "123456789012")
	assert.Error(t, err)
	assert.Equal(t, 0, client.putPolicyCalls)
}

func TestGetAWSAccountID(t *testing.T) {
	binder := newTestBinder(t, &fakeIAMClient{})

	accountID, err := binder.GetAWSAccountID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", accountID)
}

// Sanity check that the validator wired into the binder actually blocks a
// hand-crafted over-broad document.
func TestValidatorBlocksOverBroadDocument(t *testing.T) {
	validator, err := policy.NewValidator()
	require.NoError(t, err)

	document := `{
		"Version": "2012-10-17",
		"Statement": [
			{"Effect": "Allow", "Action": "secretsmanager:GetSecretValue", "Resource": "*"}
		]
	}`

	result, err := validator.ValidateDocument(context.Background(), document, testSecretARN)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.NotEmpty(t, result.Violations)
}
