package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/migration"
	logsvc "github.com/internquest/backend/services/logger"
	"github.com/internquest/backend/storage/database"
	inmemdb "github.com/internquest/backend/storage/database/inmem"
	"github.com/internquest/backend/storage/database/sqlxrepos"
	inmemstore "github.com/internquest/backend/storage/docstore/inmem"
	mongostore "github.com/internquest/backend/storage/docstore/mongodb"
)

const inmemEngine = "inmem"

func main() {
	ctx := context.Background()
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	cli := commandLine{out: os.Stdout}

	// set up the identity DB
	var repo identity.Repository
	if conf.Database.Engine == inmemEngine {
		repo = inmemdb.NewIdentityRepository(inmemdb.Open())
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening identity database", err)
		}
		defer db.Close()
		repo = sqlxrepos.NewIdentityRepository(db)
		cli.db = db.DB
	}
	cli.ids = identity.NewService(repo, conf)

	// set up the document store
	var store core.DocStore
	if conf.Mongo.URI == inmemEngine {
		store = inmemstore.New(true)
	} else {
		s, err := mongostore.Connect(ctx, conf)
		if err != nil {
			logger.Fatal("connecting to document store", err)
		}
		defer s.Close(context.Background())
		store = s
	}
	cli.store = store
	cli.conf = conf
	cli.migrations = migration.NewEngine(store, core.NewValidator(), logger, conf)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// dbOrErr is the identity DB; commands needing SQL fail when the identity store is in memory.
func (cli *commandLine) dbOrErr() (*sql.DB, error) {
	if cli.db == nil {
		return nil, errNoDatabase
	}
	return cli.db, nil
}
