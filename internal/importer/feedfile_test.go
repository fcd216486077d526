package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/signal-service/internal/model"
)

func testFeedFileConfig(location string) model.ImporterConfig {
	return model.ImporterConfig{
		Type:       model.SourceTypeFeedFile,
		State:      model.ConfigStateActive,
		Credential: model.Credential{Identifier: location},
	}
}

func collectSinglePage(t *testing.T, imp *FeedFile) *Page {
	t.Helper()
	var pages []*Page
	for page, err := range imp.Pages(context.Background(), "") {
		require.NoError(t, err)
		pages = append(pages, page)
	}
	require.Len(t, pages, 1)
	return pages[0]
}

func TestFeedFile_Pages_CSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.csv")
	csv := strings.Join([]string{
		"id,url,entities,tags,deleted,report_date",
		"g1,https://bad.example/1,org-a;org-b,extremism,false,2026-08-01",
		"g2,https://bad.example/2,,,true,",
		"g3,,,,false,",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	imp := NewFeedFile(testFeedFileConfig(path))
	page := collectSinglePage(t, imp)

	assert.Empty(t, page.Token)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, ActionUpsert, first.Action)
	assert.Equal(t, "https://bad.example/1", first.Signal.PrimaryContent())
	require.Len(t, first.Signal.Sources, 1)
	assert.Equal(t, model.SourceGIFCT, first.Signal.Sources[0].Name)
	assert.Equal(t, "g1", first.Signal.Sources[0].SourceSignalID)
	require.NotNil(t, first.Signal.Sources[0].ReportDate)
	assert.Equal(t, 2026, first.Signal.Sources[0].ReportDate.Year())
	require.NotNil(t, first.Signal.ContentFeatures)
	assert.Equal(t, []string{"org-a", "org-b"}, first.Signal.ContentFeatures.AssociatedEntities)
	assert.Equal(t, []string{"extremism"}, first.Signal.ContentFeatures.Tags)

	assert.Equal(t, ActionDelete, page.Items[1].Action)
}

func TestFeedFile_Pages_CSVReorderedColumns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.csv")
	csv := "URL,Deleted,ID\nhttps://bad.example/x,yes,g9\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	imp := NewFeedFile(testFeedFileConfig(path))
	page := collectSinglePage(t, imp)

	require.Len(t, page.Items, 1)
	assert.Equal(t, ActionDelete, page.Items[0].Action)
	assert.Equal(t, "g9", page.Items[0].Signal.Sources[0].SourceSignalID)
}

func TestFeedFile_Pages_XLSX(t *testing.T) {
	t.Parallel()

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("feed")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, name := range []string{"id", "url", "tags"} {
		header.AddCell().SetString(name)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("x1")
	row.AddCell().SetString("https://bad.example/xlsx")
	row.AddCell().SetString("hash-list")

	path := filepath.Join(t.TempDir(), "feed.xlsx")
	require.NoError(t, wb.Save(path))

	imp := NewFeedFile(testFeedFileConfig(path))
	page := collectSinglePage(t, imp)

	require.Len(t, page.Items, 1)
	item := page.Items[0]
	assert.Equal(t, "https://bad.example/xlsx", item.Signal.PrimaryContent())
	assert.Equal(t, "x1", item.Signal.Sources[0].SourceSignalID)
	assert.Equal(t, []string{"hash-list"}, item.Signal.ContentFeatures.Tags)
}

type fakeFTP struct {
	user, pass string
	retrPath   string
	payload    string
	loginErr   error
}

func (f *fakeFTP) Login(user, password string) error {
	f.user, f.pass = user, password
	return f.loginErr
}

func (f *fakeFTP) Retr(path string) (io.ReadCloser, error) {
	f.retrPath = path
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

func (f *fakeFTP) Quit() error { return nil }

func TestFeedFile_Pages_FTP(t *testing.T) {
	t.Parallel()

	fake := &fakeFTP{payload: "id,url\ng1,https://bad.example/ftp\n"}
	var dialedAddr string

	cfg := testFeedFileConfig("ftp://feeduser@files.partner.example/exports/feed.csv")
	cfg.Credential.Token = "ftp-password"

	imp := NewFeedFile(cfg, WithFTPDialer(func(addr string) (ftpConn, error) {
		dialedAddr = addr
		return fake, nil
	}))
	page := collectSinglePage(t, imp)

	assert.Equal(t, "files.partner.example:21", dialedAddr)
	assert.Equal(t, "feeduser", fake.user)
	assert.Equal(t, "ftp-password", fake.pass)
	assert.Equal(t, "/exports/feed.csv", fake.retrPath)

	require.Len(t, page.Items, 1)
	assert.Equal(t, "https://bad.example/ftp", page.Items[0].Signal.PrimaryContent())
}

func TestFeedFile_PreCheck(t *testing.T) {
	t.Parallel()

	t.Run("missing location", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedFile(testFeedFileConfig(""))
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedFile(testFeedFileConfig(filepath.Join(t.TempDir(), "absent.csv")))
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedFile(testFeedFileConfig(t.TempDir()))
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})

	t.Run("local file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "feed.csv")
		require.NoError(t, os.WriteFile(path, []byte("id,url\n"), 0o600))
		imp := NewFeedFile(testFeedFileConfig(path))
		assert.NoError(t, imp.PreCheck(context.Background()))
	})

	t.Run("ftp url", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedFile(testFeedFileConfig("ftp://files.partner.example/feed.csv"))
		assert.NoError(t, imp.PreCheck(context.Background()))
	})

	t.Run("ftp url without path", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedFile(testFeedFileConfig("ftp://files.partner.example"))
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})
}
