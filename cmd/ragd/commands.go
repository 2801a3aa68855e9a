package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pratap1297/rag-new-sub000/pkg/app"
	"github.com/pratap1297/rag-new-sub000/pkg/component"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
	"github.com/pratap1297/rag-new-sub000/pkg/query"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

// IngestCmd ingests a file or directory from the command line.
type IngestCmd struct {
	Path     string   `arg:"" help:"File or directory to ingest." type:"path"`
	Patterns []string `help:"Glob patterns for directory ingest (e.g. '*.txt')."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cleanup, err := initLogging(cli, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer cleanup()

	container, err := app.BuildContainer(cfg)
	if err != nil {
		return err
	}
	engine, err := component.Resolve[*ingest.Engine](container, app.SvcIngest)
	if err != nil {
		return err
	}

	ctx := context.Background()

	info, err := os.Stat(c.Path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		results, err := engine.IngestDirectory(ctx, c.Path, c.Patterns)
		if err != nil {
			return err
		}
		succeeded, failed := 0, 0
		for _, r := range results {
			if r.Error != "" {
				failed++
				fmt.Printf("  FAILED  %s: %s\n", r.Path, r.Error)
				continue
			}
			succeeded++
			fmt.Printf("  %-7s %s (%d chunks)\n", r.Result.Status, r.Path, r.Result.ChunksCreated)
		}
		fmt.Printf("\nIngested %d files, %d failed\n", succeeded, failed)
	} else {
		result, err := engine.IngestFile(ctx, c.Path, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Status: %s\n", result.Status)
		if result.Reason != "" {
			fmt.Printf("Reason: %s\n", result.Reason)
		}
		fmt.Printf("Chunks created: %d\n", result.ChunksCreated)
		if result.IsUpdate {
			fmt.Printf("Replaced %d old vectors\n", result.OldVectorsDeleted)
		}
	}

	store, err := component.Resolve[*vectorstore.Store](container, app.SvcStore)
	if err != nil {
		return err
	}
	if err := store.Persist(); err != nil {
		return fmt.Errorf("failed to persist vector store: %w", err)
	}
	return store.Close()
}

// QueryCmd runs a single query and prints the answer with its sources.
type QueryCmd struct {
	Text       string `arg:"" help:"Query text."`
	MaxResults int    `help:"Maximum number of sources." default:"0"`
}

func (c *QueryCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cleanup, err := initLogging(cli, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer cleanup()

	container, err := app.BuildContainer(cfg)
	if err != nil {
		return err
	}
	engine, err := component.Resolve[*query.Engine](container, app.SvcQueries)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.QueryDeadline())
	defer cancel()

	resp, err := engine.ProcessQuery(ctx, c.Text, c.MaxResults)
	if err != nil {
		return err
	}

	fmt.Println(resp.Response)
	if len(resp.Sources) > 0 {
		fmt.Printf("\nSources (%d):\n", len(resp.Sources))
		for i, src := range resp.Sources {
			fmt.Printf("  %d. [%s] score=%.3f\n     %s\n", i+1, src.DocID, src.SimilarityScore, src.Text)
		}
	}
	return nil
}

// CompactCmd physically reclaims soft-deleted vectors. Compacted vectors
// cannot be restored afterwards, so this is an explicit admin action.
type CompactCmd struct{}

func (c *CompactCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cleanup, err := initLogging(cli, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer cleanup()

	container, err := app.BuildContainer(cfg)
	if err != nil {
		return err
	}
	store, err := component.Resolve[*vectorstore.Store](container, app.SvcStore)
	if err != nil {
		return err
	}

	reclaimed, err := store.Compact(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Reclaimed %d soft-deleted vectors\n", reclaimed)

	if err := store.Persist(); err != nil {
		return fmt.Errorf("failed to persist vector store: %w", err)
	}
	return store.Close()
}

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}
