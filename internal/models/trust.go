package models

import "time"

// UserTrustRecord is the per-user profile document carrying moderation state.
// It is keyed by Firebase UID.
type UserTrustRecord struct {
	UserID         string     `json:"user_id" bson:"user_id" firestore:"-"`
	Email          string     `json:"email,omitempty" bson:"email,omitempty" firestore:"email,omitempty"`
	DisplayName    string     `json:"display_name,omitempty" bson:"display_name,omitempty" firestore:"displayName,omitempty"`
	Strikes        int        `json:"strikes" bson:"strikes" firestore:"strikes"`
	Banned         bool       `json:"banned" bson:"banned" firestore:"banned"`
	BannedAt       *time.Time `json:"banned_at,omitempty" bson:"banned_at,omitempty" firestore:"bannedAt,omitempty"`
	Admin          bool       `json:"admin" bson:"admin" firestore:"isAdmin"`
	ClaimsSyncedAt *time.Time `json:"claims_synced_at,omitempty" bson:"claims_synced_at,omitempty" firestore:"claimsSyncedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at" firestore:"updatedAt"`
}

// Clone returns a deep copy so snapshots taken before a write stay intact.
func (r *UserTrustRecord) Clone() *UserTrustRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.BannedAt != nil {
		t := *r.BannedAt
		out.BannedAt = &t
	}
	if r.ClaimsSyncedAt != nil {
		t := *r.ClaimsSyncedAt
		out.ClaimsSyncedAt = &t
	}
	return &out
}

// TrustPatch is a partial update of a UserTrustRecord.
type TrustPatch struct {
	Strikes        *int
	Banned         *bool
	BannedAt       *time.Time
	ClearBannedAt  bool
	Admin          *bool
	ClaimsSyncedAt *time.Time
}

// Apply mutates r in place and bumps UpdatedAt.
func (p TrustPatch) Apply(r *UserTrustRecord, now time.Time) {
	if p.Strikes != nil {
		r.Strikes = *p.Strikes
	}
	if p.Banned != nil {
		r.Banned = *p.Banned
	}
	if p.ClearBannedAt {
		r.BannedAt = nil
	} else if p.BannedAt != nil {
		t := *p.BannedAt
		r.BannedAt = &t
	}
	if p.Admin != nil {
		r.Admin = *p.Admin
	}
	if p.ClaimsSyncedAt != nil {
		t := *p.ClaimsSyncedAt
		r.ClaimsSyncedAt = &t
	}
	r.UpdatedAt = now
}

type SetAdminRequest struct {
	Admin *bool `json:"admin"`
}

func (r *SetAdminRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Admin == nil {
		errors["admin"] = "admin flag is required"
	}
	return errors
}
