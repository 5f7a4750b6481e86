package main

import (
	"context"
	"encoding/json"

	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/migration"
)

// backfill runs the student id migration as the system and prints its report.
func (cli *commandLine) backfill(opts migration.Options) error {
	report, err := cli.migrations.Run(context.Background(), authz.System(), opts)
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil && err == nil {
		err = encErr
	}
	return err
}
