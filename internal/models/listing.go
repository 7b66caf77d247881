package models

import (
	"strings"
	"time"
)

// Listing is a user-submitted item for sale. Firestore documents use the
// camelCase names, Mongo the snake_case ones.
type Listing struct {
	ID          string     `json:"id" bson:"_id" firestore:"-"`
	OwnerID     string     `json:"owner_id" bson:"owner_id" firestore:"ownerId"`
	Title       string     `json:"title" bson:"title" firestore:"title"`
	Description string     `json:"description" bson:"description" firestore:"description"`
	Price       float64    `json:"price" bson:"price" firestore:"price"`
	Category    string     `json:"category" bson:"category" firestore:"category"`
	ImageURLs   []string   `json:"image_urls" bson:"image_urls,omitempty" firestore:"imageUrls,omitempty"`
	Active      bool       `json:"active" bson:"active" firestore:"active"`
	Approved    bool       `json:"approved" bson:"approved" firestore:"approved"`
	Flagged     bool       `json:"flagged" bson:"flagged" firestore:"flagged"`
	FlagReason  string     `json:"flag_reason,omitempty" bson:"flag_reason,omitempty" firestore:"flagReason,omitempty"`
	ModeratedBy string     `json:"moderated_by,omitempty" bson:"moderated_by,omitempty" firestore:"moderatedBy,omitempty"`
	ModeratedAt *time.Time `json:"moderated_at,omitempty" bson:"moderated_at,omitempty" firestore:"moderatedAt,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at" firestore:"createdAt"`
}

// Visible reports whether buyers may see the listing in the marketplace.
func (l *Listing) Visible() bool {
	return l.Active && !l.Flagged
}

// ListingPatch is a partial update. Nil fields are left untouched; a
// non-nil empty FlagReason clears the reason.
type ListingPatch struct {
	Active      *bool
	Approved    *bool
	Flagged     *bool
	FlagReason  *string
	ModeratedBy *string
	ModeratedAt *time.Time
}

// Apply mutates l in place.
func (p ListingPatch) Apply(l *Listing) {
	if p.Active != nil {
		l.Active = *p.Active
	}
	if p.Approved != nil {
		l.Approved = *p.Approved
	}
	if p.Flagged != nil {
		l.Flagged = *p.Flagged
	}
	if p.FlagReason != nil {
		l.FlagReason = *p.FlagReason
	}
	if p.ModeratedBy != nil {
		l.ModeratedBy = *p.ModeratedBy
	}
	if p.ModeratedAt != nil {
		t := *p.ModeratedAt
		l.ModeratedAt = &t
	}
}

// IsEmpty reports whether the patch would change nothing.
func (p ListingPatch) IsEmpty() bool {
	return p.Active == nil && p.Approved == nil && p.Flagged == nil &&
		p.FlagReason == nil && p.ModeratedBy == nil && p.ModeratedAt == nil
}

type CreateListingRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	ImageURLs   []string `json:"image_urls"`
}

func (r *CreateListingRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title is too long"
	}
	if len(r.Description) > 5000 {
		errors["description"] = "Description is too long"
	}
	if r.Price < 0 {
		errors["price"] = "Price cannot be negative"
	}
	if len(r.ImageURLs) > 10 {
		errors["image_urls"] = "At most 10 images are allowed"
	}

	return errors
}

// Common listing categories on campus
var ListingCategories = []string{
	"Textbooks",
	"Electronics",
	"Furniture",
	"Clothing",
	"Kitchen",
	"Sports",
	"Tickets",
	"Other",
}

func Bool(b bool) *bool { return &b }

func String(s string) *string { return &s }

func Time(t time.Time) *time.Time { return &t }

func Int(i int) *int { return &i }
