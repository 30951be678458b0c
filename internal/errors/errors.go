package errors

import "errors"

var (
	ErrSecretValueEmpty    = errors.New("github token cannot be empty")
	ErrFileNotFound        = errors.New("file not found in repository")
	ErrPolicyRejected      = errors.New("policy document rejected by least-privilege check")
	ErrMissingEnvVariables = errors.New("missing required environment variables")
)
