package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
)

const defaultFeedAPIBaseURL = "https://feed.example.org/api/v1"

// feedAPIRate limits requests to the partner feed, which throttles
// aggressively. One request every two seconds with a small burst keeps us
// under their ceiling.
var feedAPIRate = rate.Every(2 * time.Second)

// FeedAPI imports URL signals from a token-authenticated, paginated
// partner feed and exports review decisions back to it.
type FeedAPI struct {
	cfg     model.ImporterConfig
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// FeedAPIOption configures a FeedAPI importer.
type FeedAPIOption func(*FeedAPI)

// WithFeedAPIBaseURL overrides the feed endpoint, used by tests.
func WithFeedAPIBaseURL(url string) FeedAPIOption {
	return func(f *FeedAPI) {
		f.baseURL = url
	}
}

// WithFeedAPIHTTPClient overrides the default http.Client.
func WithFeedAPIHTTPClient(hc *http.Client) FeedAPIOption {
	return func(f *FeedAPI) {
		f.http = hc
	}
}

// WithFeedAPILimiter overrides the request rate limiter.
func WithFeedAPILimiter(l *rate.Limiter) FeedAPIOption {
	return func(f *FeedAPI) {
		f.limiter = l
	}
}

// WithFeedAPIRetry overrides the fetch retry policy.
func WithFeedAPIRetry(cfg resilience.RetryConfig) FeedAPIOption {
	return func(f *FeedAPI) {
		f.retry = cfg
	}
}

// NewFeedAPI creates the feed API importer from its stored config.
func NewFeedAPI(cfg model.ImporterConfig, opts ...FeedAPIOption) *FeedAPI {
	f := &FeedAPI{
		cfg:     cfg,
		baseURL: defaultFeedAPIBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(feedAPIRate, 3),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FeedAPI) Source() model.SourceType {
	return model.SourceTypeFeedAPI
}

func (f *FeedAPI) SignalSource() model.SourceName {
	return model.SourceTCAP
}

// PreCheck validates the stored credential against the feed with a
// minimal request.
func (f *FeedAPI) PreCheck(ctx context.Context) error {
	if f.cfg.Credential.Identifier == "" || f.cfg.Credential.Token == "" {
		return eris.Wrap(ErrPreCheck, "feedapi: missing credential")
	}

	body, status, err := f.get(ctx, f.baseURL+"/feed?limit=1")
	if err != nil {
		return eris.Wrap(err, "feedapi: pre-check request")
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return eris.Wrapf(ErrPreCheck, "feedapi: credential rejected (%d)", status)
	}
	if status != http.StatusOK {
		return eris.Wrapf(ErrSourceResponse, "feedapi: pre-check status %d: %s", status, truncate(body, 200))
	}
	return nil
}

// feedPage is the wire shape of one feed page.
type feedPage struct {
	Results []feedEntry `json:"results"`
	Next    string      `json:"next"`
}

// feedEntry is one reported URL in the feed.
type feedEntry struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	Deleted            bool       `json:"deleted"`
	URLStatus          string     `json:"url_status"`
	StatusVerifiedOn   *time.Time `json:"status_verified_on"`
	Organisations      []string   `json:"organisations"`
	ContainsPII        string     `json:"contains_pii"`
	IsViolentOrGraphic string     `json:"is_violent_or_graphic"`
	Tags               []string   `json:"tags"`
	Confidence         float64    `json:"confidence"`
	ReportDate         *time.Time `json:"report_date"`
}

// Pages streams feed pages. The page token is the URL the page was
// fetched from, so a recorded token replays that page exactly.
func (f *FeedAPI) Pages(ctx context.Context, resume string) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		url := resume
		if url == "" {
			url = f.baseURL + "/feed"
		}

		for url != "" {
			if err := f.limiter.Wait(ctx); err != nil {
				yield(nil, eris.Wrap(err, "feedapi: rate limit wait"))
				return
			}

			page, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*feedPage, error) {
				return f.fetchPage(ctx, url)
			})
			if err != nil {
				yield(nil, err)
				return
			}

			items := make([]Item, 0, len(page.Results))
			for _, entry := range page.Results {
				if entry.URL == "" {
					continue
				}
				items = append(items, f.toItem(entry))
			}

			if !yield(&Page{Items: items, Token: url}, nil) {
				return
			}
			url = page.Next
		}
	}
}

func (f *FeedAPI) fetchPage(ctx context.Context, url string) (*feedPage, error) {
	body, status, err := f.get(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "feedapi: fetch %s", url)
	}
	if resilience.IsTransientHTTPStatus(status) {
		return nil, resilience.NewTransientError(
			eris.Wrapf(ErrSourceResponse, "feedapi: status %d: %s", status, truncate(body, 200)), status)
	}
	if status != http.StatusOK {
		return nil, eris.Wrapf(ErrSourceResponse, "feedapi: status %d: %s", status, truncate(body, 200))
	}

	var page feedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(ErrSourceResponse, "feedapi: malformed page: "+err.Error())
	}
	return &page, nil
}

func (f *FeedAPI) toItem(entry feedEntry) Item {
	sig := model.Signal{
		Content: []model.Content{{Value: entry.URL, ContentType: model.ContentTypeURL}},
		Sources: []model.Source{{
			Name:           model.SourceTCAP,
			Author:         f.cfg.Credential.Identifier,
			SourceSignalID: entry.ID,
			ReportDate:     entry.ReportDate,
		}},
	}

	if entry.ContainsPII != "" || entry.IsViolentOrGraphic != "" ||
		len(entry.Organisations) > 0 || len(entry.Tags) > 0 || entry.Confidence > 0 {
		sig.ContentFeatures = &model.ContentFeatures{
			AssociatedEntities: entry.Organisations,
			ContainsPII:        model.Flag(entry.ContainsPII),
			IsViolentOrGraphic: model.Flag(entry.IsViolentOrGraphic),
			Tags:               entry.Tags,
			Confidence:         entry.Confidence,
		}
	}

	if entry.URLStatus != "" {
		sig.ContentStatus = &model.ContentStatus{
			MostRecentStatus: model.ContentStatusValue(entry.URLStatus),
			Verifier:         model.VerifierTCAP,
			LastCheckedDate:  entry.StatusVerifiedOn,
		}
	}

	action := ActionUpsert
	if entry.Deleted {
		action = ActionDelete
	}
	return Item{Signal: sig, Action: action}
}

// SendDecisions posts one batch of review decisions to the feed.
func (f *FeedAPI) SendDecisions(ctx context.Context, decisions []Decision) error {
	type wireDecision struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
	}
	wire := make([]wireDecision, 0, len(decisions))
	for _, d := range decisions {
		verdict := "APPROVE"
		if d.Verdict == model.DecisionBlock {
			verdict = "REMOVE"
		}
		wire = append(wire, wireDecision{ID: d.SourceSignalID, Decision: verdict})
	}

	body, err := json.Marshal(map[string]any{"decisions": wire})
	if err != nil {
		return eris.Wrap(err, "feedapi: marshal decisions")
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "feedapi: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/decisions", bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "feedapi: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	f.authorize(req)

	resp, err := f.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "feedapi: send decisions"), 0)
	}
	defer resp.Body.Close()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Wrapf(ErrSourceResponse, "feedapi: decisions status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return eris.Wrapf(ErrSourceResponse, "feedapi: decisions status %d", resp.StatusCode)
	}
	return nil
}

func (f *FeedAPI) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "feedapi: create request")
	}
	f.authorize(req)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "feedapi: read response")
	}
	return body, resp.StatusCode, nil
}

func (f *FeedAPI) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token "+f.cfg.Credential.Token)
	req.Header.Set("X-Group-ID", f.cfg.Credential.Identifier)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
