package services

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// AdminClaim is the custom claim the authorization layer checks.
const AdminClaim = "admin"

type FirebaseConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// NewFirebaseApp initializes the Admin SDK. Without explicit credentials it
// falls back to Application Default Credentials (Cloud Run).
func NewFirebaseApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: new app: %w", err)
	}
	return app, nil
}

// userClaimsClient is the subset of *auth.Client the claims provider needs.
type userClaimsClient interface {
	GetUser(ctx context.Context, uid string) (*fbauth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

// FirebaseClaims grants and revokes the admin custom claim, preserving any
// other claims on the user.
type FirebaseClaims struct {
	auth userClaimsClient
}

func NewFirebaseClaims(auth userClaimsClient) *FirebaseClaims {
	return &FirebaseClaims{auth: auth}
}

func (c *FirebaseClaims) SetAdmin(ctx context.Context, userID string, admin bool) error {
	u, err := c.auth.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("firebase: get user %s: %w", userID, err)
	}

	claims := make(map[string]interface{}, len(u.CustomClaims)+1)
	for k, v := range u.CustomClaims {
		claims[k] = v
	}
	if admin {
		claims[AdminClaim] = true
	} else {
		delete(claims, AdminClaim)
	}
	if len(claims) == 0 {
		claims = nil
	}

	if err := c.auth.SetCustomUserClaims(ctx, userID, claims); err != nil {
		return fmt.Errorf("firebase: set claims %s: %w", userID, err)
	}
	return nil
}
