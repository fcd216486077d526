package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/signal-service/internal/model"
)

// FeedFile imports URL signals from a hash-sharing partner that publishes
// a flat file, either on disk or over FTP. The whole file is one page, so
// runs never resume mid-file.
type FeedFile struct {
	cfg model.ImporterConfig

	dialFTP func(addr string) (ftpConn, error)
}

// ftpConn is the slice of *ftp.ServerConn the importer uses, extracted so
// tests can fake the server.
type ftpConn interface {
	Login(user, password string) error
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type ftpClient struct {
	conn *ftp.ServerConn
}

func (c *ftpClient) Login(user, password string) error { return c.conn.Login(user, password) }

func (c *ftpClient) Retr(path string) (io.ReadCloser, error) {
	return c.conn.Retr(path)
}

func (c *ftpClient) Quit() error { return c.conn.Quit() }

// FeedFileOption configures a FeedFile importer.
type FeedFileOption func(*FeedFile)

// WithFTPDialer overrides how FTP connections are made, used by tests.
func WithFTPDialer(dial func(addr string) (ftpConn, error)) FeedFileOption {
	return func(f *FeedFile) {
		f.dialFTP = dial
	}
}

// NewFeedFile creates the file feed importer from its stored config. The
// credential identifier is the file location: a local path or an ftp://
// URL whose userinfo carries the login.
func NewFeedFile(cfg model.ImporterConfig, opts ...FeedFileOption) *FeedFile {
	f := &FeedFile{
		cfg: cfg,
		dialFTP: func(addr string) (ftpConn, error) {
			conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
			if err != nil {
				return nil, err
			}
			return &ftpClient{conn: conn}, nil
		},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FeedFile) Source() model.SourceType {
	return model.SourceTypeFeedFile
}

func (f *FeedFile) SignalSource() model.SourceName {
	return model.SourceGIFCT
}

// PreCheck validates that the configured location is usable: a readable
// local file or a well-formed ftp URL.
func (f *FeedFile) PreCheck(ctx context.Context) error {
	loc := f.cfg.Credential.Identifier
	if loc == "" {
		return eris.Wrap(ErrPreCheck, "feedfile: missing file location")
	}

	if strings.HasPrefix(loc, "ftp://") {
		u, err := url.Parse(loc)
		if err != nil {
			return eris.Wrap(ErrPreCheck, "feedfile: malformed ftp url: "+err.Error())
		}
		if u.Host == "" || u.Path == "" {
			return eris.Wrap(ErrPreCheck, "feedfile: ftp url needs host and path")
		}
		return nil
	}

	info, err := os.Stat(loc)
	if err != nil {
		return eris.Wrapf(ErrPreCheck, "feedfile: stat %s: %s", loc, err.Error())
	}
	if info.IsDir() {
		return eris.Wrapf(ErrPreCheck, "feedfile: %s is a directory", loc)
	}
	return nil
}

// Pages yields the whole file as a single page with an empty token.
func (f *FeedFile) Pages(ctx context.Context, resume string) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		data, err := f.read(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		var rows []fileRow
		switch strings.ToLower(filepath.Ext(f.location())) {
		case ".xlsx":
			rows, err = parseXLSX(data)
		default:
			rows, err = parseCSV(data)
		}
		if err != nil {
			yield(nil, err)
			return
		}

		items := make([]Item, 0, len(rows))
		for _, row := range rows {
			if row.URL == "" {
				continue
			}
			items = append(items, f.toItem(row))
		}
		yield(&Page{Items: items, Token: ""}, nil)
	}
}

// SendDecisions is a no-op: the file feed has no upstream to report to.
func (f *FeedFile) SendDecisions(ctx context.Context, decisions []Decision) error {
	return nil
}

func (f *FeedFile) location() string {
	return f.cfg.Credential.Identifier
}

func (f *FeedFile) read(ctx context.Context) ([]byte, error) {
	loc := f.location()
	if strings.HasPrefix(loc, "ftp://") {
		return f.readFTP(loc)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		return nil, eris.Wrapf(err, "feedfile: read %s", loc)
	}
	return data, nil
}

func (f *FeedFile) readFTP(loc string) ([]byte, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return nil, eris.Wrap(err, "feedfile: parse ftp url")
	}

	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}

	conn, err := f.dialFTP(addr)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceResponse, "feedfile: dial %s: %s", addr, err.Error())
	}
	defer conn.Quit()

	user := "anonymous"
	pass := "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if f.cfg.Credential.Token != "" {
		pass = f.cfg.Credential.Token
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrap(ErrPreCheck, "feedfile: ftp login: "+err.Error())
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceResponse, "feedfile: retrieve %s: %s", u.Path, err.Error())
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(ErrSourceResponse, "feedfile: read ftp body: "+err.Error())
	}
	return data, nil
}

// fileRow is one parsed feed row. Column headers are matched by name so
// partners can reorder or add columns without breaking the import.
type fileRow struct {
	ID         string
	URL        string
	Entities   string
	Tags       string
	Deleted    bool
	ReportDate *time.Time
}

func parseCSV(data []byte) ([]fileRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(ErrSourceResponse, "feedfile: read csv header: "+err.Error())
	}
	cols := columnIndex(header)

	var rows []fileRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(ErrSourceResponse, "feedfile: read csv row: "+err.Error())
		}
		rows = append(rows, rowFromRecord(cols, record))
	}
	return rows, nil
}

func parseXLSX(data []byte) ([]fileRow, error) {
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(ErrSourceResponse, "feedfile: open workbook: "+err.Error())
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.Wrap(ErrSourceResponse, "feedfile: workbook has no sheets")
	}

	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	header := make([]string, 0, len(sheet.Rows[0].Cells))
	for _, cell := range sheet.Rows[0].Cells {
		header = append(header, cell.String())
	}
	cols := columnIndex(header)

	var rows []fileRow
	for _, r := range sheet.Rows[1:] {
		record := make([]string, 0, len(r.Cells))
		for _, cell := range r.Cells {
			record = append(record, cell.String())
		}
		rows = append(rows, rowFromRecord(cols, record))
	}
	return rows, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func rowFromRecord(cols map[string]int, record []string) fileRow {
	get := func(names ...string) string {
		for _, name := range names {
			if i, ok := cols[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	row := fileRow{
		ID:       get("id", "signal_id"),
		URL:      get("url", "link"),
		Entities: get("entities", "organisations", "organizations"),
		Tags:     get("tags", "labels"),
	}

	switch strings.ToLower(get("deleted", "retracted")) {
	case "true", "yes", "1":
		row.Deleted = true
	}

	if raw := get("report_date", "reported_on", "date"); raw != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				row.ReportDate = &ts
				break
			}
		}
	}
	return row
}

func (f *FeedFile) toItem(row fileRow) Item {
	sig := model.Signal{
		Content: []model.Content{{Value: row.URL, ContentType: model.ContentTypeURL}},
		Sources: []model.Source{{
			Name:           model.SourceGIFCT,
			SourceSignalID: row.ID,
			ReportDate:     row.ReportDate,
		}},
	}

	entities := splitList(row.Entities)
	tags := splitList(row.Tags)
	if len(entities) > 0 || len(tags) > 0 {
		sig.ContentFeatures = &model.ContentFeatures{
			AssociatedEntities: entities,
			Tags:               tags,
		}
	}

	action := ActionUpsert
	if row.Deleted {
		action = ActionDelete
	}
	return Item{Signal: sig, Action: action}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
