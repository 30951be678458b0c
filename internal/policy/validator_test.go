package policy

import (
	"context"
	"strings"
	"testing"
)

const testSecretARN = "arn:aws:secretsmanager:us-east-1:123456789012:secret:commitron/prod/github-token-AbCdEf"

func TestValidator_ValidateDocument(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name              string
		document          string
		expectAllow       bool
		violationContains string
	}{
		{
			name: "exact least-privilege document",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": ["secretsmanager:GetSecretValue"],
						"Resource": "` + testSecretARN + `"
					},
					{
						"Effect": "Allow",
						"Action": ["logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"],
						"Resource": "arn:aws:logs:us-east-1:123456789012:*"
					}
				]
			}`,
			expectAllow: true,
		},
		{
			name: "string-valued action and resource",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": "secretsmanager:GetSecretValue",
						"Resource": "` + testSecretARN + `"
					}
				]
			}`,
			expectAllow: true,
		},
		{
			name: "action outside the allowed set",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": ["secretsmanager:GetSecretValue", "s3:GetObject"],
						"Resource": "` + testSecretARN + `"
					}
				]
			}`,
			expectAllow:       false,
			violationContains: "s3:GetObject",
		},
		{
			name: "wildcard action rejected",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": "secretsmanager:*",
						"Resource": "` + testSecretARN + `"
					}
				]
			}`,
			expectAllow:       false,
			violationContains: "secretsmanager:*",
		},
		{
			name: "secret read scoped wider than the one secret",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": ["secretsmanager:GetSecretValue"],
						"Resource": "arn:aws:secretsmanager:us-east-1:123456789012:secret:*"
					}
				]
			}`,
			expectAllow:       false,
			violationContains: "secret read must be scoped",
		},
		{
			name: "log write with global wildcard rejected",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Action": ["logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"],
						"Resource": "*"
					}
				]
			}`,
			expectAllow:       false,
			violationContains: "account-scoped logs wildcard",
		},
		{
			name: "deny statement rejected",
			document: `{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Deny",
						"Action": ["secretsmanager:GetSecretValue"],
						"Resource": "` + testSecretARN + `"
					}
				]
			}`,
			expectAllow:       false,
			violationContains: "only Allow statements",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.ValidateDocument(context.Background(), tt.document, testSecretARN)
			if err != nil {
				t.Fatalf("ValidateDocument() error = %v", err)
			}

			if result.Allowed != tt.expectAllow {
				t.Errorf("Allowed = %v, want %v (violations: %v)", result.Allowed, tt.expectAllow, result.Violations)
			}

			if tt.violationContains != "" {
				found := false
				for _, v := range result.Violations {
					if strings.Contains(v, tt.violationContains) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("violations %v do not mention %q", result.Violations, tt.violationContains)
				}
			}
		})
	}
}

func TestValidator_InvalidJSON(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	_, err = validator.ValidateDocument(context.Background(), "{not json", testSecretARN)
	if err == nil {
		t.Error("expected error for malformed document")
	}
}
