package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"
)

const (
	eventsServicePrincipal = "events.amazonaws.com"
	scheduleTargetID       = "commitron-daily-commit"
)

// RuleState is the scheduled invoker's state. A rule is Armed only when the
// target binding AND the invoke permission both exist; a bound rule without
// the permission silently never fires, so the two are always converged
// together.
type RuleState string

const (
	StateDisarmed RuleState = "Disarmed"
	StateArmed    RuleState = "Armed"
)

type eventsAPI interface {
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
	PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error)
	ListTargetsByRule(ctx context.Context, params *eventbridge.ListTargetsByRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.ListTargetsByRuleOutput, error)
	RemoveTargets(ctx context.Context, params *eventbridge.RemoveTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.RemoveTargetsOutput, error)
	DeleteRule(ctx context.Context, params *eventbridge.DeleteRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DeleteRuleOutput, error)
}

type lambdaPermissionAPI interface {
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
	RemovePermission(ctx context.Context, params *lambda.RemovePermissionInput, optFns ...func(*lambda.Options)) (*lambda.RemovePermissionOutput, error)
	GetPolicy(ctx context.Context, params *lambda.GetPolicyInput, optFns ...func(*lambda.Options)) (*lambda.GetPolicyOutput, error)
}

// Scheduler manages the daily EventBridge rule and its binding to the commit
// function.
type Scheduler struct {
	events eventsAPI
	lambda lambdaPermissionAPI
}

func NewScheduler(events eventsAPI, lambdaClient lambdaPermissionAPI) *Scheduler {
	return &Scheduler{
		events: events,
		lambda: lambdaClient,
	}
}

// EnsureRule creates or converges the rule with the given cadence expression.
// The rule starts (or stays) Disarmed until Arm is called. Returns the rule ARN.
func (s *Scheduler) EnsureRule(ctx context.Context, name, scheduleExpression string, tags map[string]string) (string, error) {
	result, err := s.events.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(name),
		ScheduleExpression: aws.String(scheduleExpression),
		State:              eventtypes.RuleStateEnabled,
		Description:        aws.String("Daily trigger for the commitron commit function"),
		Tags:               eventTags(tags),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put rule %s: %w", name, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("rule", name).
		Str("schedule", scheduleExpression).
		Msg("Converged schedule rule")
	return aws.ToString(result.RuleArn), nil
}

// Arm transitions the rule to Armed. Both phases are required by the
// invocation model and are performed here in order:
//  1. authorize: grant the events principal permission to invoke the
//     function, scoped to this rule's ARN;
//  2. bind: register the function as the rule's target.
//
// Performing only the binding would leave a rule that looks configured but
// never delivers an event.
func (s *Scheduler) Arm(ctx context.Context, ruleName, ruleARN, functionName, functionARN string) error {
	logger := zerolog.Ctx(ctx)

	_, err := s.lambda.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(functionName),
		StatementId:  aws.String(permissionStatementID(ruleName)),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String(eventsServicePrincipal),
		SourceArn:    aws.String(ruleARN),
	})
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if !errors.As(err, &conflict) {
			return fmt.Errorf("failed to authorize rule %s to invoke %s: %w", ruleName, functionName, err)
		}
		// Statement already present from a previous run.
	}

	_, err = s.events.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule: aws.String(ruleName),
		Targets: []eventtypes.Target{
			{
				Id:  aws.String(scheduleTargetID),
				Arn: aws.String(functionARN),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to bind rule %s to %s: %w", ruleName, functionName, err)
	}

	logger.Info().Str("rule", ruleName).Str("function", functionName).Msg("Armed schedule")
	return nil
}

// State inspects the live resources and reports Armed only when both the
// target binding and the invoke permission are present.
func (s *Scheduler) State(ctx context.Context, ruleName, functionName string) (RuleState, error) {
	targets, err := s.events.ListTargetsByRule(ctx, &eventbridge.ListTargetsByRuleInput{
		Rule: aws.String(ruleName),
	})
	if err != nil {
		return StateDisarmed, fmt.Errorf("failed to list targets for rule %s: %w", ruleName, err)
	}
	if len(targets.Targets) == 0 {
		return StateDisarmed, nil
	}

	authorized, err := s.invokeAuthorized(ctx, ruleName, functionName)
	if err != nil {
		return StateDisarmed, err
	}
	if !authorized {
		return StateDisarmed, nil
	}

	return StateArmed, nil
}

// Disarm removes the target binding and the invoke permission.
func (s *Scheduler) Disarm(ctx context.Context, ruleName, functionName string) error {
	_, err := s.events.RemoveTargets(ctx, &eventbridge.RemoveTargetsInput{
		Rule: aws.String(ruleName),
		Ids:  []string{scheduleTargetID},
	})
	if err != nil && !isEventsNotFound(err) {
		return fmt.Errorf("failed to remove targets from rule %s: %w", ruleName, err)
	}

	_, err = s.lambda.RemovePermission(ctx, &lambda.RemovePermissionInput{
		FunctionName: aws.String(functionName),
		StatementId:  aws.String(permissionStatementID(ruleName)),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to remove invoke permission from %s: %w", functionName, err)
		}
	}

	return nil
}

// DeleteRule disarms and removes the rule.
func (s *Scheduler) DeleteRule(ctx context.Context, ruleName, functionName string) error {
	if err := s.Disarm(ctx, ruleName, functionName); err != nil {
		return err
	}

	_, err := s.events.DeleteRule(ctx, &eventbridge.DeleteRuleInput{
		Name: aws.String(ruleName),
	})
	if err != nil && !isEventsNotFound(err) {
		return fmt.Errorf("failed to delete rule %s: %w", ruleName, err)
	}
	return nil
}

func (s *Scheduler) invokeAuthorized(ctx context.Context, ruleName, functionName string) (bool, error) {
	result, err := s.lambda.GetPolicy(ctx, &lambda.GetPolicyInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get policy for %s: %w", functionName, err)
	}

	var doc struct {
		Statement []struct {
			Sid string `json:"Sid"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(aws.ToString(result.Policy)), &doc); err != nil {
		return false, fmt.Errorf("failed to parse policy for %s: %w", functionName, err)
	}

	for _, stmt := range doc.Statement {
		if stmt.Sid == permissionStatementID(ruleName) {
			return true, nil
		}
	}
	return false, nil
}

func permissionStatementID(ruleName string) string {
	return "AllowEventBridge-" + ruleName
}

func isEventsNotFound(err error) bool {
	var notFound *eventtypes.ResourceNotFoundException
	return errors.As(err, &notFound)
}

func eventTags(tags map[string]string) []eventtypes.Tag {
	var result []eventtypes.Tag
	for _, k := range sortedKeys(tags) {
		result = append(result, eventtypes.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return result
}
