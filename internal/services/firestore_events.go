package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/campuskart/backend/internal/models"
)

// Eventarc CloudEvent types for Firestore document triggers.
const (
	EventDocumentCreated = "google.cloud.firestore.document.v1.created"
	EventDocumentWritten = "google.cloud.firestore.document.v1.written"
	EventDocumentUpdated = "google.cloud.firestore.document.v1.updated"
)

var ErrNoDocument = errors.New("event carries no document")

// DocumentEvent is a decoded Firestore trigger. Value is nil on delete;
// OldValue is nil on create.
type DocumentEvent struct {
	Type       string
	Collection string
	DocID      string
	Value      *firestorepb.Document
	OldValue   *firestorepb.Document
}

// documentEventData mirrors google.events.cloud.firestore.v1.DocumentEventData
// when delivered with content-type application/json.
type documentEventData struct {
	Value    json.RawMessage `json:"value"`
	OldValue json.RawMessage `json:"oldValue"`
}

var unmarshalOpts = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeDocumentEvent parses a binary-mode body, or a structured-mode
// envelope whose "data" field holds the payload.
func DecodeDocumentEvent(ceType string, body []byte) (*DocumentEvent, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		body = envelope.Data
		if ceType == "" {
			ceType = envelope.Type
		}
	}

	var data documentEventData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	ev := &DocumentEvent{Type: ceType}
	var err error
	if ev.Value, err = decodeDocument(data.Value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if ev.OldValue, err = decodeDocument(data.OldValue); err != nil {
		return nil, fmt.Errorf("decode oldValue: %w", err)
	}

	name := ""
	switch {
	case ev.Value != nil:
		name = ev.Value.GetName()
	case ev.OldValue != nil:
		name = ev.OldValue.GetName()
	default:
		return nil, ErrNoDocument
	}
	ev.Collection, ev.DocID = splitDocumentName(name)
	if ev.Collection == "" || ev.DocID == "" {
		return nil, fmt.Errorf("unexpected document name %q", name)
	}
	return ev, nil
}

func decodeDocument(raw json.RawMessage) (*firestorepb.Document, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	doc := &firestorepb.Document{}
	if err := unmarshalOpts.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// splitDocumentName turns
// projects/p/databases/(default)/documents/listings/abc into ("listings", "abc").
// Subcollection paths yield the innermost collection.
func splitDocumentName(name string) (string, string) {
	_, path, ok := strings.Cut(name, "/documents/")
	if !ok {
		path = name
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// Listing converts the post-write document.
func (e *DocumentEvent) Listing() (*models.Listing, error) {
	if e.Value == nil {
		return nil, ErrNoDocument
	}
	return ListingFromDocument(e.DocID, e.Value), nil
}

// TrustRecords converts both sides of a users/{uid} write.
func (e *DocumentEvent) TrustRecords() (before, after *models.UserTrustRecord) {
	if e.OldValue != nil {
		before = TrustRecordFromDocument(e.DocID, e.OldValue)
	}
	if e.Value != nil {
		after = TrustRecordFromDocument(e.DocID, e.Value)
	}
	return before, after
}

func ListingFromDocument(id string, doc *firestorepb.Document) *models.Listing {
	f := doc.GetFields()
	l := &models.Listing{
		ID:          id,
		OwnerID:     fieldString(f, "ownerId"),
		Title:       fieldString(f, "title"),
		Description: fieldString(f, "description"),
		Price:       fieldFloat(f, "price"),
		Category:    fieldString(f, "category"),
		ImageURLs:   fieldStrings(f, "imageUrls"),
		Active:      fieldBool(f, "active"),
		Approved:    fieldBool(f, "approved"),
		Flagged:     fieldBool(f, "flagged"),
		FlagReason:  fieldString(f, "flagReason"),
		ModeratedBy: fieldString(f, "moderatedBy"),
		ModeratedAt: fieldTime(f, "moderatedAt"),
	}
	if t := fieldTime(f, "createdAt"); t != nil {
		l.CreatedAt = *t
	}
	return l
}

func TrustRecordFromDocument(id string, doc *firestorepb.Document) *models.UserTrustRecord {
	f := doc.GetFields()
	rec := &models.UserTrustRecord{
		UserID:         id,
		Email:          fieldString(f, "email"),
		DisplayName:    fieldString(f, "displayName"),
		Strikes:        int(fieldInt(f, "strikes")),
		Banned:         fieldBool(f, "banned"),
		BannedAt:       fieldTime(f, "bannedAt"),
		Admin:          fieldBool(f, "isAdmin"),
		ClaimsSyncedAt: fieldTime(f, "claimsSyncedAt"),
	}
	if t := fieldTime(f, "updatedAt"); t != nil {
		rec.UpdatedAt = *t
	}
	return rec
}

func fieldString(f map[string]*firestorepb.Value, key string) string {
	return f[key].GetStringValue()
}

func fieldBool(f map[string]*firestorepb.Value, key string) bool {
	return f[key].GetBooleanValue()
}

func fieldInt(f map[string]*firestorepb.Value, key string) int64 {
	v := f[key]
	switch t := v.GetValueType().(type) {
	case *firestorepb.Value_IntegerValue:
		return t.IntegerValue
	case *firestorepb.Value_DoubleValue:
		return int64(t.DoubleValue)
	case *firestorepb.Value_StringValue:
		n, _ := strconv.ParseInt(t.StringValue, 10, 64)
		return n
	}
	return 0
}

func fieldFloat(f map[string]*firestorepb.Value, key string) float64 {
	v := f[key]
	switch t := v.GetValueType().(type) {
	case *firestorepb.Value_DoubleValue:
		return t.DoubleValue
	case *firestorepb.Value_IntegerValue:
		return float64(t.IntegerValue)
	}
	return 0
}

func fieldTime(f map[string]*firestorepb.Value, key string) *time.Time {
	ts := f[key].GetTimestampValue()
	if ts == nil {
		return nil
	}
	t := ts.AsTime().UTC()
	return &t
}

func fieldStrings(f map[string]*firestorepb.Value, key string) []string {
	arr := f[key].GetArrayValue()
	if arr == nil {
		return nil
	}
	out := make([]string, 0, len(arr.GetValues()))
	for _, v := range arr.GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
