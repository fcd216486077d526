package importer

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// Load builds the importer for a source from its stored configuration.
// A missing or disabled config wraps ErrImporterLoad so callers can skip
// the run instead of failing it.
func Load(ctx context.Context, st store.Store, source model.SourceType) (Importer, error) {
	cfg, err := st.GetImporterConfig(ctx, source)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrImporterLoad, "no config for source %s", source)
		}
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, eris.Wrapf(ErrImporterLoad, "source %s is disabled", source)
	}

	switch source {
	case model.SourceTypeFeedAPI:
		return NewFeedAPI(*cfg), nil
	case model.SourceTypeFeedFile:
		return NewFeedFile(*cfg), nil
	default:
		return nil, eris.Wrapf(ErrImporterLoad, "unsupported source %s", source)
	}
}
