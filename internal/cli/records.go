package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/memlog"
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Ingest a JSONL memory log",
	Long:  "Read one memory record per line and write each to the semantic, temporal and relational stores.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var boostCmd = &cobra.Command{
	Use:   "boost <id>",
	Short: "Show the retention boost of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoost,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every record with the current embedder",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	addRemoteFlag(importCmd)
	addRemoteFlag(boostCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	records, stats, err := memlog.ParseFile(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "parsed %d of %d lines (%d skipped)\n", stats.Parsed, stats.Lines, stats.Skipped)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	var ingested, failed int
	err = withBackend(ctx, func(c *client.Client) error {
		res, err := c.Ingest(ctx, records)
		if err != nil {
			return err
		}
		ingested, failed = res.Ingested, len(res.Failed)
		for _, f := range res.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.ID, f.Error)
		}
		return nil
	}, func(st *stack) error {
		for _, rec := range records {
			if _, err := st.engine.Ingest(ctx, rec); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", rec.ID, err)
				failed++
				continue
			}
			ingested++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(w, "ingested %d, failed %d\n", ingested, failed)
	return nil
}

func runBoost(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var boost float64
	err := withBackend(ctx, func(c *client.Client) (err error) {
		boost, err = c.Boost(ctx, args[0])
		return err
	}, func(st *stack) (err error) {
		boost, err = st.ledger.Boost(ctx, args[0])
		return err
	})
	if err != nil {
		return fmt.Errorf("boost: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %.2f\n", args[0], boost)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	st, err := openStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.engine.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "re-embedded %d records with %s\n", n, st.engine.Model())
	return nil
}
