package services

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

func isUnsafeLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return isUnsafeLikelyOrHigher(r.Adult) || isUnsafeLikelyOrHigher(r.Violence) || isUnsafeLikelyOrHigher(r.Racy)
}

// SafeSearchScreener judges listing images with Vision SAFE_SEARCH_DETECTION.
type SafeSearchScreener struct {
	svc *vision.Service
}

// NewSafeSearchScreener uses Application Default Credentials in Cloud Run.
func NewSafeSearchScreener(ctx context.Context) (*SafeSearchScreener, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, fmt.Errorf("safesearch: vision client: %w", err)
	}
	return &SafeSearchScreener{svc: svc}, nil
}

func imageSource(uri string) *vision.ImageSource {
	if strings.HasPrefix(uri, "gs://") {
		return &vision.ImageSource{GcsImageUri: uri}
	}
	return &vision.ImageSource{ImageUri: uri}
}

// Detect runs SafeSearch on a gs:// or https:// image.
// Ref: https://cloud.google.com/vision/docs/detecting-safe-search
func (s *SafeSearchScreener) Detect(ctx context.Context, uri string) (*SafeSearchResult, error) {
	req := &vision.AnnotateImageRequest{
		Image: &vision.Image{Source: imageSource(uri)},
		Features: []*vision.Feature{
			{Type: "SAFE_SEARCH_DETECTION"},
		},
	}

	resp, err := s.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return &SafeSearchResult{}, nil
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("safesearch: %s", r.Error.Message)
	}
	ss := r.SafeSearchAnnotation
	if ss == nil {
		return &SafeSearchResult{}, nil
	}

	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}

// IsUnsafe implements moderation.ImageScreener.
func (s *SafeSearchScreener) IsUnsafe(ctx context.Context, uri string) (bool, error) {
	ss, err := s.Detect(ctx, uri)
	if err != nil {
		return false, err
	}
	log.Debugf("[safesearch] %s: adult=%s violence=%s racy=%s", uri, ss.Adult, ss.Violence, ss.Racy)
	return ss.IsUnsafe(), nil
}
