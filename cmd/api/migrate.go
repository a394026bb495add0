package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"engage-notify/internal/infra/db"
)

// runMigrate implements "api migrate up|down". Down drops every table and
// refuses to run without -yes.
func runMigrate(ctx context.Context, args []string, w io.Writer, open func(context.Context) (*sql.DB, error)) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(w)
	yes := fs.Bool("yes", false, "Confirm a destructive migrate down")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: api migrate [-yes] up|down")
	}
	direction := fs.Arg(0)
	if direction != "up" && direction != "down" {
		return fmt.Errorf("unknown direction %q", direction)
	}
	if direction == "down" && !*yes {
		return errors.New("migrate down deletes all delivery logs; pass -yes to confirm")
	}

	database, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if direction == "up" {
		err = db.MigrateUp(database)
	} else {
		err = db.MigrateDown(database)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	_, err = fmt.Fprintf(w, "migrate %s complete\n", direction)
	return err
}
