package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskart/backend/internal/moderation"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`
terms:
  - textbook resale scam
  - bootleg
strike_threshold: 5
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"textbook resale scam", "bootleg"}, p.Terms)
	assert.Equal(t, 5, p.StrikeThreshold)
	assert.Equal(t, moderation.DefaultSellerBannedReason, p.SellerBannedReason)
	assert.Equal(t, moderation.DefaultActor, p.Actor)

	_, err = ParsePolicy([]byte(`strike_threshold: -2`))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte(`terms: [unclosed`))
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	ctx := context.Background()

	p, err := LoadPolicy(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, moderation.DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strike_threshold: 2\n"), 0o600))
	p, err = LoadPolicy(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.StrikeThreshold)
	assert.NotEmpty(t, p.Terms)

	_, err = LoadPolicy(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSplitGCSURI(t *testing.T) {
	b, o, err := splitGCSURI("gs://campuskart-config/moderation/policy.yaml")
	require.NoError(t, err)
	assert.Equal(t, "campuskart-config", b)
	assert.Equal(t, "moderation/policy.yaml", o)

	_, _, err = splitGCSURI("gs://bucket-only")
	assert.Error(t, err)
}

func TestSafeSearchResultIsUnsafe(t *testing.T) {
	assert.False(t, (&SafeSearchResult{Adult: "POSSIBLE", Violence: "UNLIKELY"}).IsUnsafe())
	assert.True(t, (&SafeSearchResult{Racy: "LIKELY"}).IsUnsafe())
	assert.True(t, (&SafeSearchResult{Violence: "VERY_LIKELY"}).IsUnsafe())
	// Spoof and medical are informational only.
	assert.False(t, (&SafeSearchResult{Spoof: "VERY_LIKELY", Medical: "VERY_LIKELY"}).IsUnsafe())
}

func TestImageSource(t *testing.T) {
	assert.Equal(t, "gs://b/o.jpg", imageSource("gs://b/o.jpg").GcsImageUri)
	assert.Equal(t, "https://cdn/x.jpg", imageSource("https://cdn/x.jpg").ImageUri)
}

type fakeAuth struct {
	claims   map[string]interface{}
	set      map[string]interface{}
	setCalls int
	getErr   error
}

func (f *fakeAuth) GetUser(ctx context.Context, uid string) (*fbauth.UserRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &fbauth.UserRecord{
		UserInfo:     &fbauth.UserInfo{UID: uid},
		CustomClaims: f.claims,
	}, nil
}

func (f *fakeAuth) SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error {
	f.setCalls++
	f.set = customClaims
	return nil
}

func TestFirebaseClaimsPreservesOtherClaims(t *testing.T) {
	fa := &fakeAuth{claims: map[string]interface{}{"campus": "north"}}
	c := NewFirebaseClaims(fa)

	require.NoError(t, c.SetAdmin(context.Background(), "u1", true))
	assert.Equal(t, map[string]interface{}{"campus": "north", "admin": true}, fa.set)
	// The stored claims map is not mutated.
	assert.NotContains(t, fa.claims, "admin")

	fa.claims = map[string]interface{}{"campus": "north", "admin": true}
	require.NoError(t, c.SetAdmin(context.Background(), "u1", false))
	assert.Equal(t, map[string]interface{}{"campus": "north"}, fa.set)

	fa.claims = map[string]interface{}{"admin": true}
	require.NoError(t, c.SetAdmin(context.Background(), "u1", false))
	assert.Nil(t, fa.set)
	assert.Equal(t, 3, fa.setCalls)
}

func TestFirebaseClaimsGetUserError(t *testing.T) {
	fa := &fakeAuth{getErr: errors.New("no such user")}
	err := NewFirebaseClaims(fa).SetAdmin(context.Background(), "u1", true)
	assert.Error(t, err)
	assert.Equal(t, 0, fa.setCalls)
}
