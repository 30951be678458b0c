package services

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"
)

type lambdaAPI interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	PutFunctionConcurrency(ctx context.Context, params *lambda.PutFunctionConcurrencyInput, optFns ...func(*lambda.Options)) (*lambda.PutFunctionConcurrencyOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// FunctionSpec is the desired state of the compute unit. Everything here is
// static configuration; nothing is tuned at runtime.
type FunctionSpec struct {
	Name           string
	RoleARN        string
	Handler        string
	Runtime        lambdatypes.Runtime
	TimeoutSeconds int32
	MemoryMB       int32
	Layers         []string
	Environment    map[string]string
	Tags           map[string]string

	// Code: inline zip or S3 location for staged artifacts.
	ZipFile  []byte
	S3Bucket string
	S3Key    string

	// CodeSHA256 is the artifact's content address. Code is redeployed only
	// when it differs from the deployed CodeSha256.
	CodeSHA256 string
}

// Deployment reports what the converge actually changed, so re-runs with
// unchanged inputs can be asserted to be no-ops.
type Deployment struct {
	FunctionARN   string
	FunctionName  string
	Created       bool
	CodeUpdated   bool
	ConfigUpdated bool
}

// reservedConcurrency caps the function at a single concurrent execution so
// overlapping schedule ticks queue instead of committing at the same time.
const reservedConcurrency = int32(1)

// FunctionDeployer converges the Lambda function toward a FunctionSpec.
type FunctionDeployer struct {
	client lambdaAPI
}

func NewFunctionDeployer(client lambdaAPI) *FunctionDeployer {
	return &FunctionDeployer{client: client}
}

// Deploy creates the function or converges code and configuration separately.
// A single concurrent execution is reserved so overlapping schedule ticks
// cannot run two commits at once.
func (d *FunctionDeployer) Deploy(ctx context.Context, spec FunctionSpec) (*Deployment, error) {
	logger := zerolog.Ctx(ctx)

	current, err := d.client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(spec.Name),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to get function %s: %w", spec.Name, err)
		}
		return d.create(ctx, spec)
	}

	deployment := &Deployment{
		FunctionARN:  aws.ToString(current.Configuration.FunctionArn),
		FunctionName: spec.Name,
	}

	if aws.ToString(current.Configuration.CodeSha256) != spec.CodeSHA256 {
		if err := d.updateCode(ctx, spec); err != nil {
			return nil, err
		}
		deployment.CodeUpdated = true
		logger.Info().Str("function", spec.Name).Msg("Updated function code")
	}

	if configDrifted(current.Configuration, spec) {
		_, err = d.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
			FunctionName: aws.String(spec.Name),
			Role:         aws.String(spec.RoleARN),
			Handler:      aws.String(spec.Handler),
			Runtime:      spec.Runtime,
			Timeout:      aws.Int32(spec.TimeoutSeconds),
			MemorySize:   aws.Int32(spec.MemoryMB),
			Layers:       spec.Layers,
			Environment: &lambdatypes.Environment{
				Variables: spec.Environment,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update function configuration: %w", err)
		}
		deployment.ConfigUpdated = true
		logger.Info().Str("function", spec.Name).Msg("Updated function configuration")
	}

	if concurrencyDrifted(current.Concurrency) {
		_, err = d.client.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
			FunctionName:                 aws.String(spec.Name),
			ReservedConcurrentExecutions: aws.Int32(reservedConcurrency),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set function concurrency: %w", err)
		}
		deployment.ConfigUpdated = true
		logger.Info().Str("function", spec.Name).Msg("Restored reserved concurrency")
	}

	return deployment, nil
}

func (d *FunctionDeployer) create(ctx context.Context, spec FunctionSpec) (*Deployment, error) {
	code := &lambdatypes.FunctionCode{}
	if spec.S3Bucket != "" {
		code.S3Bucket = aws.String(spec.S3Bucket)
		code.S3Key = aws.String(spec.S3Key)
	} else {
		code.ZipFile = spec.ZipFile
	}

	created, err := d.client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(spec.Name),
		Role:         aws.String(spec.RoleARN),
		Handler:      aws.String(spec.Handler),
		Runtime:      spec.Runtime,
		Timeout:      aws.Int32(spec.TimeoutSeconds),
		MemorySize:   aws.Int32(spec.MemoryMB),
		Layers:       spec.Layers,
		Code:         code,
		Environment: &lambdatypes.Environment{
			Variables: spec.Environment,
		},
		Tags: spec.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create function %s: %w", spec.Name, err)
	}

	_, err = d.client.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
		FunctionName:                 aws.String(spec.Name),
		ReservedConcurrentExecutions: aws.Int32(reservedConcurrency),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set function concurrency: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("function", spec.Name).Msg("Created function")
	return &Deployment{
		FunctionARN:  aws.ToString(created.FunctionArn),
		FunctionName: spec.Name,
		Created:      true,
		CodeUpdated:  true,
	}, nil
}

func (d *FunctionDeployer) updateCode(ctx context.Context, spec FunctionSpec) error {
	input := &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(spec.Name),
	}
	if spec.S3Bucket != "" {
		input.S3Bucket = aws.String(spec.S3Bucket)
		input.S3Key = aws.String(spec.S3Key)
	} else {
		input.ZipFile = spec.ZipFile
	}

	if _, err := d.client.UpdateFunctionCode(ctx, input); err != nil {
		return fmt.Errorf("failed to update function code: %w", err)
	}
	return nil
}

// Delete removes the function. A missing function is not an error.
func (d *FunctionDeployer) Delete(ctx context.Context, name string) error {
	_, err := d.client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete function %s: %w", name, err)
	}
	return nil
}

// Invoke runs the function once synchronously and returns the raw payload.
func (d *FunctionDeployer) Invoke(ctx context.Context, name string) ([]byte, error) {
	result, err := d.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		LogType:      lambdatypes.LogTypeNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke function %s: %w", name, err)
	}

	if result.FunctionError != nil {
		return result.Payload, fmt.Errorf("function %s returned error: %s", name, aws.ToString(result.FunctionError))
	}
	return result.Payload, nil
}

func concurrencyDrifted(current *lambdatypes.Concurrency) bool {
	return current == nil || aws.ToInt32(current.ReservedConcurrentExecutions) != reservedConcurrency
}

func configDrifted(current *lambdatypes.FunctionConfiguration, spec FunctionSpec) bool {
	if aws.ToInt32(current.Timeout) != spec.TimeoutSeconds {
		return true
	}
	if aws.ToInt32(current.MemorySize) != spec.MemoryMB {
		return true
	}
	if aws.ToString(current.Role) != spec.RoleARN {
		return true
	}
	if aws.ToString(current.Handler) != spec.Handler {
		return true
	}

	var currentEnv map[string]string
	if current.Environment != nil {
		currentEnv = current.Environment.Variables
	}
	if !maps.Equal(currentEnv, spec.Environment) {
		return true
	}

	if len(current.Layers) != len(spec.Layers) {
		return true
	}
	for i, layer := range current.Layers {
		if aws.ToString(layer.Arn) != spec.Layers[i] {
			return true
		}
	}

	return false
}
