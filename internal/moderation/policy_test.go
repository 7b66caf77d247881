package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskart/backend/internal/models"
)

func TestMatcherWordBoundaries(t *testing.T) {
	m, err := NewMatcher([]string{"scam", "fake id", "ass", "c++"})
	require.NoError(t, err)
	require.Equal(t, 4, m.Len())

	tests := []struct {
		name string
		text string
		term string
		hit  bool
	}{
		{"exact word", "this is a scam", "scam", true},
		{"case insensitive", "Total SCAM deal", "scam", true},
		{"punctuation boundary", "scam!", "scam", true},
		{"start of text", "scam artist", "scam", true},
		{"inside longer word", "scampi for sale", "", false},
		{"substring of class", "first class textbook", "", false},
		{"multi word term", "selling a Fake ID cheap", "fake id", true},
		{"multi word split", "fake identity theft novel", "", false},
		{"regex metacharacters", "learn c++ fast", "c++", true},
		{"unicode letters are word chars", "scamé", "", false},
		{"newline boundary", "Desk\nscam", "scam", true},
		{"empty text", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			term, ok := m.Match(tc.text)
			assert.Equal(t, tc.hit, ok)
			assert.Equal(t, tc.term, term)
		})
	}
}

func TestMatcherSkipsBlankTerms(t *testing.T) {
	m, err := NewMatcher([]string{"", "  ", "Weed"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	term, ok := m.Match("selling weed")
	assert.True(t, ok)
	assert.Equal(t, "weed", term)
}

func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{StrikeThreshold: 5, Actor: "bot"}.WithDefaults()
	assert.Equal(t, 5, p.StrikeThreshold)
	assert.Equal(t, "bot", p.Actor)
	assert.Equal(t, DefaultViolationReason, p.ViolationReason)
	assert.Equal(t, DefaultSellerBannedReason, p.SellerBannedReason)
	assert.NotEmpty(t, p.Terms)

	empty := Policy{Terms: []string{}}.WithDefaults()
	assert.Empty(t, empty.Terms)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{StrikeThreshold: -1}.Validate())
	assert.Error(t, Policy{StrikeThreshold: 3, Terms: []string{"ok", " "}}.Validate())
}

func TestApplyStrike(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &models.UserTrustRecord{UserID: "u1", Strikes: 1}

	assert.False(t, applyStrike(rec, 3, t0))
	assert.Equal(t, 2, rec.Strikes)
	assert.False(t, rec.Banned)
	assert.Nil(t, rec.BannedAt)

	assert.True(t, applyStrike(rec, 3, t0))
	assert.Equal(t, 3, rec.Strikes)
	assert.True(t, rec.Banned)
	require.NotNil(t, rec.BannedAt)
	assert.Equal(t, t0, *rec.BannedAt)

	later := t0.Add(time.Hour)
	assert.False(t, applyStrike(rec, 3, later))
	assert.Equal(t, 4, rec.Strikes)
	assert.Equal(t, t0, *rec.BannedAt)
}

func TestApplyStrikeAlreadyBannedBelowThreshold(t *testing.T) {
	banned := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.UserTrustRecord{UserID: "u1", Banned: true, BannedAt: &banned}

	assert.False(t, applyStrike(rec, 3, banned.Add(time.Hour)))
	assert.Equal(t, 1, rec.Strikes)
	assert.True(t, rec.Banned)
	assert.Equal(t, banned, *rec.BannedAt)
}

func TestStrikePatchWritesOnlyStrikeFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := &models.UserTrustRecord{UserID: "u1", Strikes: 1, Admin: true, Email: "u1@campus.edu"}
	banned := applyStrike(rec, 3, now)
	p := strikePatch(rec, banned)
	require.NotNil(t, p.Strikes)
	assert.Equal(t, 2, *p.Strikes)
	assert.Nil(t, p.Banned)
	assert.Nil(t, p.BannedAt)
	assert.Nil(t, p.Admin)
	assert.Nil(t, p.ClaimsSyncedAt)
	assert.False(t, p.ClearBannedAt)

	banned = applyStrike(rec, 3, now)
	p = strikePatch(rec, banned)
	assert.Equal(t, 3, *p.Strikes)
	require.NotNil(t, p.Banned)
	assert.True(t, *p.Banned)
	require.NotNil(t, p.BannedAt)
	assert.Equal(t, now, *p.BannedAt)
	assert.Nil(t, p.Admin)

	// Strikes past the ban leave banned/bannedAt alone.
	banned = applyStrike(rec, 3, now.Add(time.Hour))
	p = strikePatch(rec, banned)
	assert.Equal(t, 4, *p.Strikes)
	assert.Nil(t, p.Banned)
	assert.Nil(t, p.BannedAt)
}

func TestMatcherLowercasesText(t *testing.T) {
	m, err := NewMatcher([]string{"Café Scam"})
	require.NoError(t, err)

	term, ok := m.Match("CAFÉ SCAM here")
	assert.True(t, ok)
	assert.Equal(t, "café scam", term)
}
