package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/internquest/backend/apps/api/echo"
	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/migration"
	"github.com/internquest/backend/core/notification"
	"github.com/internquest/backend/core/user"
	emailsvc "github.com/internquest/backend/services/email"
	logsvc "github.com/internquest/backend/services/logger"
	pushsvc "github.com/internquest/backend/services/push"
	"github.com/internquest/backend/storage/database"
	inmemdb "github.com/internquest/backend/storage/database/inmem"
	"github.com/internquest/backend/storage/database/sqlxrepos"
	inmemstore "github.com/internquest/backend/storage/docstore/inmem"
	mongostore "github.com/internquest/backend/storage/docstore/mongodb"
)

const (
	shutdownTimeout = 10 * time.Second
	inmemEngine     = "inmem"
)

// store is what the services need from the document database.
type store interface {
	core.DocStore
	core.DocWatcher
}

// TODO:
// - Profiling (Benchmarking) !! https://blog.golang.org/pprof
// - APM/Tracing
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idRepo, closeDB, err := setUpIdentityRepo(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up identity database: %v", err), err)
	}
	defer closeDB()

	docs, closeDocs, err := setUpDocStore(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up document store: %v", err), err)
	}
	defer closeDocs()

	tmpls, err := core.ParseTemplates(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, tmpls)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, tmpls)
	}

	validator := core.NewValidator()
	ids := identity.NewService(idRepo, conf)
	notificationSvc := notification.NewService(docs, pushsvc.NewExpoGateway(conf), validator, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	if conf.WatchNotifications {
		go func() {
			if err := notificationSvc.Listen(ctx, docs); err != nil && ctx.Err() == nil {
				logger.Error("notification listener stopped", err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Options{
		Conf:            conf,
		Logger:          logger,
		Validator:       validator,
		IdentitySvc:     ids,
		UserSvc:         user.NewService(ids, docs, mailSvc, validator, logger, conf),
		MigrationEngine: migration.NewEngine(docs, validator, logger, conf),
		NotificationSvc: notificationSvc,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case <-ctx.Done():
		logger.Info("Start shutdown...")

		// give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err = server.Stop(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

// setUpIdentityRepo opens and migrates the Postgres identity database, or an in-memory
// one when database.engine is "inmem".
func setUpIdentityRepo(ctx context.Context, conf *core.Config) (identity.Repository, func(), error) {
	if conf.Database.Engine == inmemEngine {
		return inmemdb.NewIdentityRepository(inmemdb.Open()), func() {}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sqlxrepos.NewIdentityRepository(db), closer(db), nil
}

func closer(db *sqlx.DB) func() {
	return func() { _ = db.Close() }
}

// setUpDocStore connects to MongoDB, or keeps documents in memory when mongo.uri is "inmem".
func setUpDocStore(ctx context.Context, conf *core.Config) (store, func(), error) {
	if conf.Mongo.URI == inmemEngine {
		return inmemstore.New(true), func() {}, nil
	}

	s, err := mongostore.Connect(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close(context.Background()) }, nil
}
