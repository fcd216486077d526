package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-service/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "import", "reindex", "diagnostics", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "signal-service", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_RequiredFlags(t *testing.T) {
	flag := importCmd.Flags().Lookup("source")
	require.NotNil(t, flag, "import command should have --source flag")
}

func TestDiagnosticsCommand_Flags(t *testing.T) {
	require.NotNil(t, diagnosticsCmd.Flags().Lookup("source"))
	flag := diagnosticsCmd.Flags().Lookup("days")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)
}

func TestMigrateCommand_SeedsImporterConfigs(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	seed := `
sources:
  - type: FEED_API
    state: ACTIVE
    diagnostics_state: INACTIVE
    credential:
      identifier: group-9
      token: feed-token
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte(seed), 0644))

	dbPath := filepath.Join(dir, "signals.db")
	t.Setenv("SIGNAL_STORE_DRIVER", "sqlite")
	t.Setenv("SIGNAL_STORE_DATABASE_URL", dbPath)

	rootCmd.SetArgs([]string{"migrate"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close()

	saved, err := st.GetImporterConfig(context.Background(), model.SourceTypeFeedAPI)
	require.NoError(t, err)
	assert.Equal(t, model.ConfigStateActive, saved.State)
	assert.Equal(t, "group-9", saved.Credential.Identifier)
	assert.Equal(t, "feed-token", saved.Credential.Token)
}

func TestMigrateCommand_MissingSeedFileIsFine(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SIGNAL_STORE_DRIVER", "sqlite")
	t.Setenv("SIGNAL_STORE_DATABASE_URL", filepath.Join(dir, "signals.db"))

	rootCmd.SetArgs([]string{"migrate"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
}
