package extractor

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSource loads extraction artifacts from Google Cloud Storage by
// "gs://bucket/path" URI. With an empty credentialsFile it relies on
// application default credentials.
type GCSSource struct {
	credentialsFile string
}

// NewGCSSource creates a GCS-backed artifact source. credentialsFile may
// be empty.
func NewGCSSource(credentialsFile string) *GCSSource {
	return &GCSSource{credentialsFile: credentialsFile}
}

// Load downloads and decodes the artifact at the given gs:// URI.
func (s *GCSSource) Load(ctx context.Context, gcsURI string) (*ExtractedDocument, error) {
	bucketName, objectPath, err := splitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if s.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("Load: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Load: reading bytes: %w", err)
	}

	return Parse(data, path.Base(objectPath))
}

func splitGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
