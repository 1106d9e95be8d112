// Package firebase adapts Firebase services to the application: Cloud
// Storage for attachment blobs and Cloud Messaging for push notifications.
package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/phrazzld/clientflow/internal/config"
)

// NewApp initializes a Firebase app from cfg. Without a credentials file the
// application default credentials are used.
func NewApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	fbConfig := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	return app, nil
}
