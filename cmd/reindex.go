package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/index"
	"github.com/sells-group/signal-service/internal/store"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the similarity index snapshots from the full signal set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		signals, err := st.ListSignals(ctx, store.SignalFilter{})
		if err != nil {
			return err
		}

		for _, family := range []index.Family{index.FamilyDCT, index.FamilyMD5} {
			ix := index.New(family)
			ix.Build(signals)
			if err := ix.Save(ctx, st); err != nil {
				return err
			}
			zap.L().Info("index rebuilt",
				zap.String("family", string(family)),
				zap.Int("signals", len(signals)),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
