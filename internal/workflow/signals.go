package workflow

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/hashing"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// maxFetchBytes bounds how much of a reported URL is downloaded for
// hashing.
const maxFetchBytes = 20 << 20

// Fetcher retrieves the bytes behind a reported URL.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// HTTPFetcher is the default Fetcher, a plain bounded GET.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "workflow: create fetch request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: fetch %s", url)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("workflow: fetch %s: status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: read %s", url)
		}
		return data, nil
	}
}

// Enricher derives hash content for newly imported URL signals so the
// similarity index can match future submissions against them.
type Enricher struct {
	store  store.Store
	fetch  Fetcher
	holder string
	log    *zap.Logger
}

// NewEnricher creates an Enricher. A nil fetch uses HTTPFetcher.
func NewEnricher(st store.Store, fetch Fetcher, holder string) *Enricher {
	if fetch == nil {
		fetch = HTTPFetcher(nil)
	}
	return &Enricher{store: st, fetch: fetch, holder: holder, log: zap.L()}
}

// ProcessNewSignals handles one chunk of freshly inserted signal IDs.
// URL-only signals get perceptual and exact hash content derived from the
// fetched bytes. A URL whose bytes cannot be fetched or hashed still
// deserves review: it becomes a case without a target.
func (e *Enricher) ProcessNewSignals(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processSignal(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) processSignal(ctx context.Context, id string) error {
	sig, err := e.store.GetSignal(ctx, id)
	if err != nil {
		return err
	}
	if sig.IsRedacted() || !sig.IsURLOnly() {
		return nil
	}

	url := sig.PrimaryContent()
	data, err := e.fetch(ctx, url)
	if err == nil {
		var h hashing.Hash
		h, err = hashing.FromBytes(data)
		if err == nil {
			sig.Content = append(sig.Content,
				model.Content{Value: h.String(), ContentType: model.ContentTypeHashDCT},
				model.Content{Value: hashing.MD5Hex(data), ContentType: model.ContentTypeHashMD5},
			)
			return e.store.UpdateSignal(ctx, *sig)
		}
	}

	e.log.Info("url signal not hashable, opening case without target",
		zap.String("signal_id", id),
		zap.Error(err))
	_, rerr := ReduceCase(ctx, e.store, e.holder, "", []string{id})
	return rerr
}
