package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

// MongoStore keeps listings and profiles in MongoDB. Transactions need a
// replica set (Atlas always has one).
type MongoStore struct {
	client      *mongo.Client
	db          *mongo.Database
	listingsCol *mongo.Collection
	profilesCol *mongo.Collection
}

var _ moderation.Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, mongoURI, dbName string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(mongoURI)
	// Atlas occasionally fails TLS negotiation unless TLS 1.2 is forced.
	if strings.HasPrefix(mongoURI, "mongodb+srv://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	listings := db.Collection("listings")
	profiles := db.Collection("profiles")

	// Best-effort indexes.
	_, _ = listings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	_, _ = profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	log.Printf("[store] MongoDB connected: db=%s", dbName)
	return &MongoStore{
		client:      client,
		db:          db,
		listingsCol: listings,
		profilesCol: profiles,
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mapMongoErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return moderation.ErrNotFound
	}
	return err
}

func listingPatchUpdate(p models.ListingPatch) bson.M {
	set := bson.M{}
	unset := bson.M{}
	if p.Active != nil {
		set["active"] = *p.Active
	}
	if p.Approved != nil {
		set["approved"] = *p.Approved
	}
	if p.Flagged != nil {
		set["flagged"] = *p.Flagged
	}
	if p.FlagReason != nil {
		if *p.FlagReason == "" {
			unset["flag_reason"] = ""
		} else {
			set["flag_reason"] = *p.FlagReason
		}
	}
	if p.ModeratedBy != nil {
		set["moderated_by"] = *p.ModeratedBy
	}
	if p.ModeratedAt != nil {
		set["moderated_at"] = *p.ModeratedAt
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func trustPatchUpdate(p models.TrustPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	unset := bson.M{}
	if p.Strikes != nil {
		set["strikes"] = *p.Strikes
	}
	if p.Banned != nil {
		set["banned"] = *p.Banned
	}
	if p.ClearBannedAt {
		unset["banned_at"] = ""
	} else if p.BannedAt != nil {
		set["banned_at"] = *p.BannedAt
	}
	if p.Admin != nil {
		set["admin"] = *p.Admin
	}
	if p.ClaimsSyncedAt != nil {
		set["claims_synced_at"] = *p.ClaimsSyncedAt
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

type mongoTx struct {
	s *MongoStore
}

func (t *mongoTx) Listing(ctx context.Context, listingID string) (*models.Listing, error) {
	return t.s.GetListing(ctx, listingID)
}

func (t *mongoTx) TrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	var rec models.UserTrustRecord
	if err := t.s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec); err != nil {
		return nil, mapMongoErr(err)
	}
	return &rec, nil
}

func (t *mongoTx) ActiveListingsByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	cur, err := t.s.listingsCol.Find(
		ctx,
		bson.M{"owner_id": ownerID, "active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.Listing, 0)
	for cur.Next(ctx) {
		var l models.Listing
		if err := cur.Decode(&l); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *mongoTx) PatchTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) error {
	res, err := t.s.profilesCol.UpdateOne(ctx, bson.M{"user_id": userID}, trustPatchUpdate(patch, time.Now().UTC()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (t *mongoTx) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	return t.s.PatchListing(ctx, listingID, patch)
}

// WithTransaction runs fn in a snapshot transaction. The driver retries the
// whole callback on TransientTransactionError, which covers write conflicts
// between concurrent strikes on the same profile.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx moderation.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{s: s})
	}, txOpts)
	return err
}

func (s *MongoStore) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := s.listingsCol.InsertOne(ctx, l)
	return err
}

func (s *MongoStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	var l models.Listing
	if err := s.listingsCol.FindOne(ctx, bson.M{"_id": listingID}).Decode(&l); err != nil {
		return nil, mapMongoErr(err)
	}
	return &l, nil
}

func (s *MongoStore) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	res, err := s.listingsCol.UpdateOne(ctx, bson.M{"_id": listingID}, listingPatchUpdate(patch))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteListing(ctx context.Context, listingID string) error {
	res, err := s.listingsCol.DeleteOne(ctx, bson.M{"_id": listingID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetTrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	var rec models.UserTrustRecord
	if err := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec); err != nil {
		return nil, mapMongoErr(err)
	}
	return &rec, nil
}

// GetOrCreateTrustRecord returns the user's profile, creating a clean one if missing.
func (s *MongoStore) GetOrCreateTrustRecord(ctx context.Context, userID, email string) (*models.UserTrustRecord, error) {
	now := time.Now().UTC()

	var rec models.UserTrustRecord
	err := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec)
	if err == nil {
		if email != "" && rec.Email == "" {
			_, _ = s.profilesCol.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
				"$set": bson.M{"email": email, "updated_at": now},
			})
			rec.Email = email
			rec.UpdatedAt = now
		}
		return &rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	rec = models.UserTrustRecord{
		UserID:    userID,
		Email:     email,
		UpdatedAt: now,
	}
	if _, err := s.profilesCol.InsertOne(ctx, rec); err != nil {
		// If a race created it, fetch again.
		var retry models.UserTrustRecord
		if err2 := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&retry); err2 == nil {
			return &retry, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) UpdateTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) (*models.UserTrustRecord, *models.UserTrustRecord, error) {
	now := time.Now().UTC()

	var before models.UserTrustRecord
	err := s.profilesCol.FindOneAndUpdate(
		ctx,
		bson.M{"user_id": userID},
		trustPatchUpdate(patch, now),
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		return nil, nil, mapMongoErr(err)
	}

	after := before.Clone()
	patch.Apply(after, now)
	return &before, after, nil
}
