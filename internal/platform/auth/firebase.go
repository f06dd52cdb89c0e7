package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/trademate/api/internal/platform/config"
)

// NewFirebaseApp initialises the Admin SDK app shared by token verification and push messaging.
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	return app, nil
}

// NewFirebaseVerifier returns the Admin SDK auth client, which satisfies TokenVerifier.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*firebaseauth.Client, error) {
	if app == nil {
		return nil, errors.New("firebase app is required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}
