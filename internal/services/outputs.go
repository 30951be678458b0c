package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type ssmAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// Outputs are the identifiers exposed after provisioning. The secret's value
// is deliberately not part of this set; only its ARN is.
type Outputs struct {
	FunctionARN  string `json:"function_arn"`
	FunctionName string `json:"function_name"`
	RoleARN      string `json:"role_arn"`
	SecretARN    string `json:"secret_arn"`
	RuleARN      string `json:"rule_arn"`
}

// OutputsStore publishes provisioning outputs to SSM Parameter Store under
// /<env>/commitron so other tooling can discover the resource identifiers.
type OutputsStore struct {
	client ssmAPI
	env    string
}

func NewOutputsStore(client ssmAPI, env string) *OutputsStore {
	return &OutputsStore{client: client, env: env}
}

func (s *OutputsStore) basePath() string {
	return fmt.Sprintf("/%s/commitron", s.env)
}

// Save writes each output as a standard (non-secure) string parameter. None of
// the values is sensitive.
func (s *OutputsStore) Save(ctx context.Context, outputs *Outputs) error {
	params := map[string]string{
		"function-arn":  outputs.FunctionARN,
		"function-name": outputs.FunctionName,
		"role-arn":      outputs.RoleARN,
		"secret-arn":    outputs.SecretARN,
		"rule-arn":      outputs.RuleARN,
	}

	for _, name := range sortedKeys(params) {
		fullName := fmt.Sprintf("%s/%s", s.basePath(), name)
		_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(fullName),
			Value:     aws.String(params[name]),
			Type:      ssmtypes.ParameterTypeString,
			Overwrite: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to put parameter %s: %w", fullName, err)
		}
	}

	return nil
}

// Load reads the published outputs back from Parameter Store. Other tooling
// may write under the same path, so results are read through all pages.
func (s *OutputsStore) Load(ctx context.Context) (*Outputs, error) {
	params := make(map[string]string)

	var nextToken *string
	for {
		result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:      aws.String(s.basePath()),
			Recursive: aws.Bool(true),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", s.basePath(), err)
		}

		for _, param := range result.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}

		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	base := s.basePath()
	return &Outputs{
		FunctionARN:  params[base+"/function-arn"],
		FunctionName: params[base+"/function-name"],
		RoleARN:      params[base+"/role-arn"],
		SecretARN:    params[base+"/secret-arn"],
		RuleARN:      params[base+"/rule-arn"],
	}, nil
}
