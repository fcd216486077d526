package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/importer"
	"github.com/sells-group/signal-service/internal/model"
)

var (
	diagnosticsSource string
	diagnosticsDays   int
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Export recent review decisions back to a source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		source := model.SourceType(diagnosticsSource)
		if source != model.SourceTypeFeedAPI && source != model.SourceTypeFeedFile {
			return eris.Errorf("unknown source %q", diagnosticsSource)
		}
		if diagnosticsDays < 1 {
			return eris.New("--days must be at least 1")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cfgRow, err := st.GetImporterConfig(ctx, source)
		if err != nil {
			return eris.Wrap(err, "load importer config")
		}
		if cfgRow.DiagnosticsState != model.ConfigStateActive {
			return eris.Errorf("diagnostics are not enabled for %s", source)
		}

		imp, err := importer.Load(ctx, st, source)
		if err != nil {
			return eris.Wrap(err, "load importer")
		}

		end := time.Now().UTC()
		start := end.AddDate(0, 0, -diagnosticsDays)
		runner := importer.NewRunner(st)
		if err := runner.SendDiagnostics(ctx, imp, start, end); err != nil {
			return eris.Wrap(err, "send diagnostics")
		}

		zap.L().Info("diagnostics export complete",
			zap.String("source", diagnosticsSource),
			zap.Time("start", start),
			zap.Time("end", end),
		)
		return nil
	},
}

func init() {
	diagnosticsCmd.Flags().StringVar(&diagnosticsSource, "source", "", "source type: FEED_API or FEED_FILE (required)")
	diagnosticsCmd.Flags().IntVar(&diagnosticsDays, "days", 1, "how many days of reviews to export")
	_ = diagnosticsCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(diagnosticsCmd)
}
