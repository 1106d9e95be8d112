package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	fb "firebase.google.com/go/v4"
	"github.com/phrazzld/clientflow/internal/api"
	"github.com/phrazzld/clientflow/internal/attachment"
	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/events"
	"github.com/phrazzld/clientflow/internal/live"
	"github.com/phrazzld/clientflow/internal/platform/firebase"
	"github.com/phrazzld/clientflow/internal/platform/localfs"
	"github.com/phrazzld/clientflow/internal/platform/postgres"
	"github.com/phrazzld/clientflow/internal/platform/sqlite"
	"github.com/phrazzld/clientflow/internal/service/auth"
	"github.com/phrazzld/clientflow/internal/service/workflow"
	"github.com/phrazzld/clientflow/internal/session"
	"github.com/phrazzld/clientflow/internal/store"
	"github.com/spf13/afero"
)

// application holds the wired server and what must be released on exit.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	handler  http.Handler
	sessions *session.Manager
	closers  []func()

	// lazily created, shared by blob storage and push
	firebaseApp *fb.App
}

// stores is the persistence backend chosen by database.driver.
type stores struct {
	tasks  store.TaskStore
	users  store.UserStore
	health func(ctx context.Context) error
}

// newApplication wires every component from cfg. On error everything
// already opened is released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			app.cleanup()
		}
	}()

	limits, err := attachment.LimitsForMode(cfg.Attachments.Mode)
	if err != nil {
		return nil, err
	}

	st, err := app.openStores(ctx)
	if err != nil {
		return nil, err
	}
	broker := live.NewBroker(st.tasks, logger)

	blobs, files, err := app.openBlobs(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	identity := auth.NewIdentity(st.users, auth.NewBcryptHasher(cfg.Auth.BCryptCost), tokens, logger)
	if cfg.Auth.AdminEmail != "" {
		if _, _, err := identity.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName); err != nil {
			return nil, err
		}
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	app.sessions = session.NewManager(broker, emitter, session.Config{
		FeedCapacity: cfg.Notifications.FeedCapacity,
		Reminder:     cfg.Reminder,
	}, logger)
	emitter.RegisterHandler(app.sessions)
	app.closers = append(app.closers, app.sessions.CloseAll)

	if err := app.wireOutboundEvents(ctx, emitter); err != nil {
		return nil, err
	}

	svc, err := workflow.NewService(broker, st.users, blobs, emitter, logger)
	if err != nil {
		return nil, err
	}

	tasks := api.NewTaskHandler(svc, limits, attachment.NewThumbnailPreviewer(), logger)
	app.sessions.OnSessionChange(tasks.HandleSessionChange)

	app.handler = api.NewRouter(api.RouterDeps{
		Auth:          api.NewAuthHandler(identity, app.sessions, logger),
		Tasks:         tasks,
		Notifications: api.NewNotificationHandler(nil, logger),
		Stream:        api.NewStreamHandler(api.DefaultHeartbeat, logger),
		Authenticator: identity,
		Sessions:      app.sessions,
		Files:         files,
		HealthCheck:   st.health,
		AuthRateLimit: cfg.Server.AuthRateLimit,
		AuthRateBurst: cfg.Server.AuthRateBurst,
		Logger:        logger,
	})

	logger.Info("application initialized",
		slog.String("database", cfg.Database.Driver),
		slog.String("blob", cfg.Blob.Driver),
		slog.String("attachments", cfg.Attachments.Mode),
		slog.Bool("push", cfg.Push.Enabled),
		slog.Bool("nats", cfg.Events.NATSURL != ""))
	ready = true
	return app, nil
}

func (app *application) openStores(ctx context.Context) (*stores, error) {
	cfg := app.cfg.Database
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return nil, err
		}
		return &stores{
			tasks:  postgres.NewPostgresTaskStore(db, app.logger),
			users:  postgres.NewPostgresUserStore(db, app.logger),
			health: db.PingContext,
		}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.URL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		return &stores{
			tasks:  sqlite.NewTaskStore(db, app.logger),
			users:  sqlite.NewUserStore(db, app.logger),
			health: db.PingContext,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// openBlobs returns the blob store and, for local storage, the handler that
// serves stored files.
func (app *application) openBlobs(ctx context.Context) (store.BlobStore, http.Handler, error) {
	cfg := app.cfg.Blob
	switch cfg.Driver {
	case "local":
		blobs, err := localfs.NewBlobStore(afero.NewOsFs(), cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return blobs, blobs.Handler(), nil

	case "firebase":
		fbApp, err := app.firebase(ctx)
		if err != nil {
			return nil, nil, err
		}
		blobs, err := firebase.NewBlobStore(ctx, fbApp, app.cfg.Firebase.StorageBucket)
		if err != nil {
			return nil, nil, err
		}
		return blobs, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
}

// wireOutboundEvents forwards workflow events to NATS and push messaging when
// they are configured.
func (app *application) wireOutboundEvents(ctx context.Context, emitter *events.InMemoryEventEmitter) error {
	if url := app.cfg.Events.NATSURL; url != "" {
		nc, err := events.ConnectNATS(url, app.logger)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, func() {
			if err := nc.Drain(); err != nil {
				app.logger.Warn("failed to drain NATS connection", slog.String("error", err.Error()))
			}
		})
		emitter.RegisterHandler(events.NewNATSPublisher(nc, app.cfg.Events.SubjectPrefix, app.logger))
	}

	if app.cfg.Push.Enabled {
		fbApp, err := app.firebase(ctx)
		if err != nil {
			return err
		}
		client, err := firebase.NewMessagingClient(ctx, fbApp)
		if err != nil {
			return err
		}
		emitter.RegisterHandler(firebase.NewPushNotifier(client, app.cfg.Push.AdminTopic, app.logger))
	}
	return nil
}

func (app *application) firebase(ctx context.Context) (*fb.App, error) {
	if app.firebaseApp != nil {
		return app.firebaseApp, nil
	}
	fbApp, err := firebase.NewApp(ctx, app.cfg.Firebase)
	if err != nil {
		return nil, err
	}
	app.firebaseApp = fbApp
	return fbApp, nil
}

// cleanup releases resources in reverse order of acquisition.
func (app *application) cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}
