// Package identity resolves signed-in users into the identity triple the
// ledger works with.
package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"quizzies/internal/models"
)

// ErrInvalidToken is returned for ID tokens that fail verification
var ErrInvalidToken = errors.New("invalid identity token")

// NewFirebaseApp initializes a Firebase app. credentialsJSON (base64) wins
// over credentialsFile; with neither, application default credentials apply.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile, credentialsJSON string) (*firebase.App, error) {
	var opts []option.ClientOption

	if credentialsJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(credentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
		log.Println("Firebase: initializing from FIREBASE_CREDENTIALS_JSON")
	} else if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
			log.Printf("Firebase: initializing from %s", credentialsFile)
		} else {
			log.Printf("Firebase: %s not found, using application default credentials", credentialsFile)
		}
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// TokenVerifier is the part of the Firebase auth client the verifier needs
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier turns Firebase ID tokens into identities
type FirebaseVerifier struct {
	client TokenVerifier
}

// NewFirebaseVerifier creates a verifier backed by the app's auth client
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// NewVerifier wraps any token verifier
func NewVerifier(client TokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify checks idToken and returns the identity it carries
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*models.Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return FromToken(token), nil
}

// FromToken maps verified token claims onto an identity. The display name
// falls back to the email's local part.
func FromToken(token *auth.Token) *models.Identity {
	id := &models.Identity{UserID: token.UID}

	if name, ok := token.Claims["name"].(string); ok {
		id.DisplayName = strings.TrimSpace(name)
	}
	if id.DisplayName == "" {
		if email, ok := token.Claims["email"].(string); ok {
			id.DisplayName, _, _ = strings.Cut(email, "@")
		}
	}
	if picture, ok := token.Claims["picture"].(string); ok {
		id.PhotoRef = picture
	}
	return id
}
