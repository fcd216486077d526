package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/importer"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/workflow"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one import for a single source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		ctx := cmd.Context()
		source := model.SourceType(importSource)
		if source != model.SourceTypeFeedAPI && source != model.SourceTypeFeedFile {
			return eris.Errorf("unknown source %q", importSource)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		imp, err := importer.Load(ctx, st, source)
		if err != nil {
			return eris.Wrap(err, "load importer")
		}

		holder := workerName()
		enricher := workflow.NewEnricher(st, nil, holder)
		runner := importer.NewRunner(st, importer.WithSoftTimeLimit(cfg.Importer.SoftTimeLimit))

		job, err := runner.Run(ctx, imp, cfg.Importer.ChunkSize, func(ids []string) error {
			return enricher.ProcessNewSignals(ctx, ids)
		})
		if err != nil {
			return eris.Wrap(err, "import run")
		}

		zap.L().Info("import complete",
			zap.String("source", importSource),
			zap.String("status", string(job.Status)),
			zap.Int("imported", job.ImportSize),
			zap.Int("updated", job.UpdateSize),
			zap.Int("deleted", job.DeleteSize),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "source type: FEED_API or FEED_FILE (required)")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
