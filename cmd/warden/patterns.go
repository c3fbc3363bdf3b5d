package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	cli "github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"

	"github.com/elum-utils/warden/adapters/storage"
	"github.com/elum-utils/warden/engine"
	"github.com/elum-utils/warden/interfaces"
)

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "run the detector over text without connecting anywhere",
	ArgsUsage: "<text>...",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return errors.New("check: expected at least one text argument")
		}
		ctx := cctx.Context
		src, closeSrc, err := openPatternSource(ctx, cctx.String("patterns-db"))
		if err != nil {
			return err
		}
		defer closeSrc()

		patterns, err := src.GetPatterns(ctx)
		if err != nil {
			return err
		}
		e := engine.New()
		if err := e.Load(patterns); err != nil {
			return err
		}
		for _, text := range cctx.Args().Slice() {
			printVerdict(cctx.App.Writer, e, text)
		}
		return nil
	},
}

func printVerdict(w io.Writer, e *engine.Engine, text string) {
	v := e.Detect(text)
	if !v.Matched {
		fmt.Fprintf(w, "clean\t%q\n", text)
		return
	}
	fmt.Fprintf(w, "match\t%q\tpattern=%d form=%s\n", text, v.Index, v.Form)
}

var patternsCmd = &cli.Command{
	Name:  "patterns",
	Usage: "manage the pattern list stored in --patterns-db",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "print stored patterns in evaluation order",
			Action: func(cctx *cli.Context) error {
				return withPatternDB(cctx, func(ctx context.Context, db *storage.SQLAdapter) error {
					patterns, err := db.GetPatterns(ctx)
					if err != nil {
						return err
					}
					for i, p := range patterns {
						fmt.Fprintf(cctx.App.Writer, "%d\t%s\n", i, p)
					}
					return nil
				})
			},
		},
		{
			Name:      "add",
			Usage:     "append a pattern after validating it",
			ArgsUsage: "<regexp>",
			Action: func(cctx *cli.Context) error {
				pattern := cctx.Args().First()
				if pattern == "" {
					return errors.New("patterns add: missing pattern")
				}
				if err := engine.New().Load([]string{pattern}); err != nil {
					return err
				}
				return withPatternDB(cctx, func(ctx context.Context, db *storage.SQLAdapter) error {
					return db.AddPattern(ctx, pattern)
				})
			},
		},
		{
			Name:      "remove",
			Usage:     "delete a pattern; defaults are seeded only into a new database, never again",
			ArgsUsage: "<regexp>",
			Action: func(cctx *cli.Context) error {
				pattern := cctx.Args().First()
				if pattern == "" {
					return errors.New("patterns remove: missing pattern")
				}
				return withPatternDB(cctx, func(ctx context.Context, db *storage.SQLAdapter) error {
					return db.RemovePattern(ctx, pattern)
				})
			},
		},
	},
}

func withPatternDB(cctx *cli.Context, fn func(ctx context.Context, db *storage.SQLAdapter) error) error {
	path := cctx.String("patterns-db")
	if path == "" {
		return errors.New("--patterns-db is required")
	}
	db, closeDB, err := openPatternDB(cctx.Context, path)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(cctx.Context, db)
}

// openPatternSource returns the sqlite pattern store when path is set and
// the built-in defaults otherwise.
func openPatternSource(ctx context.Context, path string) (interfaces.PatternSource, func(), error) {
	if path == "" {
		return storage.NewMemoryAdapter(engine.DefaultPatterns...), func() {}, nil
	}
	store, closeDB, err := openPatternDB(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return store, closeDB, nil
}

// openPatternDB opens the store, creating the table and seeding the
// defaults on first use.
func openPatternDB(ctx context.Context, path string) (*storage.SQLAdapter, func(), error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open patterns db: %w", err)
	}
	db.SetMaxOpenConns(1)
	closeDB := func() { _ = db.Close() }

	store, err := storage.NewSQLAdapter(db, "")
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("patterns schema: %w", err)
	}
	if _, err := store.Seed(ctx, engine.DefaultPatterns); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("seed patterns: %w", err)
	}
	return store, closeDB, nil
}
