package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// directUploadLimit is the size above which a zip must be staged to S3 instead
// of being sent inline with the function create/update call.
const directUploadLimit = 50 * 1024 * 1024

// Artifact is an opaque deployable zip plus its content address. The hash is
// the base64-encoded SHA-256 of the zip bytes, matching the CodeSha256 the
// Lambda service reports, so redeploys can be gated on content changes.
type Artifact struct {
	Path   string
	Data   []byte
	SHA256 string
}

// LoadArtifact reads the zip at path and computes its content hash.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("artifact %s is empty", path)
	}

	return &Artifact{
		Path:   path,
		Data:   data,
		SHA256: contentHash(data),
	}, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NeedsStaging reports whether the artifact is too large for direct upload.
func (a *Artifact) NeedsStaging() bool {
	return len(a.Data) > directUploadLimit
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactStore stages oversized artifacts to S3. The key is derived from the
// content hash so re-uploading unchanged bytes overwrites the same object.
type ArtifactStore struct {
	client s3API
	bucket string
}

func NewArtifactStore(client s3API, bucket string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket}
}

// Stage uploads the artifact and returns the bucket and key to reference from
// the function's code definition.
func (s *ArtifactStore) Stage(ctx context.Context, functionName string, artifact *Artifact) (bucket, key string, err error) {
	key = fmt.Sprintf("%s/%x.zip", functionName, sha256.Sum256(artifact.Data))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(artifact.Data),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to stage artifact to s3://%s/%s: %w", s.bucket, key, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("bytes", len(artifact.Data)).
		Msg("Staged artifact")
	return s.bucket, key, nil
}
