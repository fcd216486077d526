package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/signal-service/internal/model"
)

// seedFile is the on-disk shape of the importer-config seed document.
type seedFile struct {
	Sources []model.ImporterConfig `yaml:"sources"`
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema and seed importer configs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate schema")
		}
		zap.L().Info("schema up to date")

		data, err := os.ReadFile(cfg.Importer.SeedFile)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				zap.L().Info("no seed file, skipping importer config seed",
					zap.String("path", cfg.Importer.SeedFile))
				return nil
			}
			return eris.Wrap(err, "read seed file")
		}

		var seed seedFile
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrap(err, "parse seed file")
		}
		for _, sc := range seed.Sources {
			if sc.Type != model.SourceTypeFeedAPI && sc.Type != model.SourceTypeFeedFile {
				return eris.Errorf("seed file names unknown source %q", sc.Type)
			}
		}

		if err := st.UpsertImporterConfigs(ctx, seed.Sources); err != nil {
			return eris.Wrap(err, "seed importer configs")
		}
		zap.L().Info("importer configs seeded",
			zap.Int("count", len(seed.Sources)),
			zap.String("path", cfg.Importer.SeedFile),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
