package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func documentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "Owner of the document",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "doc",
			Aliases:  []string{"d"},
			Usage:    "Document id",
			Required: true,
		},
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "ingestctl",
		Usage: "Operate the document ingestion pipeline against the configured backends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "process",
				Usage:  "Run the full pipeline for a document and wait for it",
				Flags:  documentFlags(),
				Action: processCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Diff a document's live file against its chunks and apply the changes",
				Flags:  documentFlags(),
				Action: reindexCommand,
			},
			{
				Name:  "rollback",
				Usage: "Restore an archived version and reprocess it",
				Flags: append(documentFlags(), &cli.IntFlag{
					Name:     "version",
					Usage:    "Version number to restore",
					Required: true,
				}),
				Action: rollbackCommand,
			},
			{
				Name:   "status",
				Usage:  "Print a document's processing state",
				Flags:  documentFlags(),
				Action: statusCommand,
			},
			{
				Name:   "versions",
				Usage:  "List a document's archived versions",
				Flags:  documentFlags(),
				Action: versionsCommand,
			},
			{
				Name:  "batch",
				Usage: "Print a batch and its documents",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Owner of the batch", Required: true},
					&cli.StringFlag{Name: "id", Usage: "Batch id", Required: true},
				},
				Action: batchCommand,
			},
		},
	}
}

// withApp connects to the configured backends for the duration of fn.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func processCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		doc, err := a.Documents.Get(ctx, c.String("user"), c.String("doc"))
		if err != nil {
			return err
		}
		if err := a.Pipeline.Process(ctx, doc.ID); err != nil {
			return err
		}
		return printDocument(ctx, a, c.String("user"), doc.ID)
	})
}

func reindexCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		doc, err := a.Documents.Get(ctx, c.String("user"), c.String("doc"))
		if err != nil {
			return err
		}
		if err := a.Pipeline.Reindex(ctx, doc.ID); err != nil {
			return err
		}
		return printDocument(ctx, a, c.String("user"), doc.ID)
	})
}

func rollbackCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		// The app's version service queues onto the background ingestor, which
		// is not running here.
		versions := services.NewVersionService(a.DBClient, a.ObjectClient, a.Pipeline)
		if err := versions.Rollback(ctx, c.String("user"), c.String("doc"), c.Int("version")); err != nil {
			return err
		}
		return printDocument(ctx, a, c.String("user"), c.String("doc"))
	})
}

func statusCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		return printDocument(ctx, a, c.String("user"), c.String("doc"))
	})
}

func versionsCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		vs, err := a.Versions.GetVersions(ctx, c.String("user"), c.String("doc"))
		if err != nil {
			return err
		}
		return printJSON(vs)
	})
}

func batchCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		b, docs, err := a.Batches.GetBatch(ctx, c.String("user"), c.String("id"))
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"batch": b, "documents": docs})
	})
}

func printDocument(ctx context.Context, a *app.App, userID, docID string) error {
	doc, err := a.Documents.Get(ctx, userID, docID)
	if err != nil {
		return err
	}
	vectors, err := a.VectorIndex.CountForDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"document": doc, "vector_points": vectors})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
