package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/migration"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("this command needs the Postgres identity database")
)

type commandLine struct {
	conf       *core.Config
	db         *sql.DB
	ids        *identity.Service
	store      core.DocStore
	migrations *migration.Engine
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME -role ROLE           - create or update a console account")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                           - reset an account's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                               - run a goose command on the identity database")
	fmt.Fprintln(cli.out, "  backfill [-dry-run] [-keep-legacy] [-batch-size N]")
	fmt.Fprintln(cli.out, "           [-resume-collection C -resume-after ID]     - copy legacy student numbers into studentId")
}

// promptPassword reads a password without echo; an empty one prints the usage of fs.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The account's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The account's display name.")
	addUserRole := addUserCmd.String("role", "admin", "One of admin, coordinator, adviser.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	backfillCmd := flag.NewFlagSet("backfill", flag.ContinueOnError)
	backfillDryRun := backfillCmd.Bool("dry-run", false, "Report the changes without writing them.")
	backfillKeepLegacy := backfillCmd.Bool("keep-legacy", false, "Keep the legacy field after copying it.")
	backfillBatchSize := backfillCmd.Int("batch-size", migration.DefaultBatchSize, "Documents per batch (clamped to 50..450).")
	backfillResumeColl := backfillCmd.String("resume-collection", "", "Collection to resume from, as reported by a truncated run.")
	backfillResumeAfter := backfillCmd.String("resume-after", "", "Last processed document id of the resumed collection.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, backfillCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserEmail, *addUserName, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "backfill":
		if err := backfillCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		opts := migration.Options{DryRun: *backfillDryRun, BatchSize: *backfillBatchSize}
		if *backfillKeepLegacy {
			deleteLegacy := false
			opts.DeleteLegacyField = &deleteLegacy
		}
		if *backfillResumeColl != "" {
			opts.Resume = &migration.Cursor{Collection: *backfillResumeColl, AfterID: *backfillResumeAfter}
		}
		return cli.backfill(opts)

	default:
		cli.printUsage()
		return errHelp
	}
}
