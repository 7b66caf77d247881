package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/campuskart/backend/internal/moderation"
)

// LoadPolicy reads the moderation policy from uri. An empty uri yields the
// built-in defaults; gs://bucket/object is read from Cloud Storage; anything
// else is a local file path. Missing fields fall back to the defaults.
func LoadPolicy(ctx context.Context, uri string) (moderation.Policy, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return moderation.DefaultPolicy(), nil
	}

	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(uri, "gs://") {
		raw, err = readGCSObject(ctx, uri)
	} else {
		raw, err = os.ReadFile(uri)
	}
	if err != nil {
		return moderation.Policy{}, fmt.Errorf("policy: read %s: %w", uri, err)
	}

	p, err := ParsePolicy(raw)
	if err != nil {
		return moderation.Policy{}, fmt.Errorf("policy: %s: %w", uri, err)
	}
	log.WithFields(log.Fields{
		"source":    uri,
		"terms":     len(p.Terms),
		"threshold": p.StrikeThreshold,
	}).Info("[policy] moderation policy loaded")
	return p, nil
}

// ParsePolicy decodes YAML and applies defaults.
func ParsePolicy(raw []byte) (moderation.Policy, error) {
	var p moderation.Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return moderation.Policy{}, fmt.Errorf("decode yaml: %w", err)
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return moderation.Policy{}, err
	}
	return p, nil
}

func splitGCSURI(uri string) (string, string, error) {
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid gcs uri %q", uri)
	}
	return bucket, object, nil
}

func readGCSObject(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
