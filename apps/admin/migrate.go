package main

import (
	"context"

	"github.com/internquest/backend/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	db, err := cli.dbOrErr()
	if err != nil {
		return err
	}
	return gooseRunFunc(context.Background(), db, args[0], args[1:]...)
}
