package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/hashing"
	"github.com/sells-group/signal-service/internal/index"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
	"github.com/sells-group/signal-service/internal/store"
	"github.com/sells-group/signal-service/pkg/perspective"
	"github.com/sells-group/signal-service/pkg/translate"
	"github.com/sells-group/signal-service/pkg/visionapi"
)

// Well-known signal content values. Analyzer verdicts above threshold
// attach these service-owned signals to the case instead of minting a new
// signal per submission.
const (
	threatSignalContent   = "PERSPECTIVE_THREAT"
	violenceSignalContent = "SAFE_SEARCH_VIOLENCE"
)

// Options are the explicit analyzer feature switches and thresholds,
// threaded in at startup.
type Options struct {
	OCREnabled        bool
	TranslateEnabled  bool
	ToxicityEnabled   bool
	SafeSearchEnabled bool

	// ThreatThreshold is the minimum Perspective THREAT score that
	// attaches the threat signal.
	ThreatThreshold float64

	// ViolenceThreshold is the minimum safe-search violence likelihood
	// that attaches the violence signal.
	ViolenceThreshold visionapi.Likelihood

	// IndexRetry bounds the wait for a missing index snapshot
	// (mid-rebuild) before the hash branch is dropped.
	IndexRetry resilience.RetryConfig
}

// DefaultOptions enables every analyzer with the standard thresholds.
func DefaultOptions() Options {
	return Options{
		OCREnabled:        true,
		TranslateEnabled:  true,
		ToxicityEnabled:   true,
		SafeSearchEnabled: true,
		ThreatThreshold:   0.7,
		ViolenceThreshold: visionapi.LikelihoodLikely,
		IndexRetry: resilience.RetryConfig{
			MaxAttempts:    4,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     15 * time.Second,
		},
	}
}

// Analyzer runs the fan-out analysis graph for submitted targets.
type Analyzer struct {
	store      store.Store
	vision     visionapi.Client
	translator translate.Client
	toxicity   perspective.Client
	opts       Options
	holder     string
	log        *zap.Logger
}

// NewAnalyzer wires the analyzer clients together. Holder names this
// worker in store locks. Nil clients implicitly disable their branches.
func NewAnalyzer(st store.Store, vision visionapi.Client, translator translate.Client, toxicity perspective.Client, holder string, opts Options) *Analyzer {
	return &Analyzer{
		store:      st,
		vision:     vision,
		translator: translator,
		toxicity:   toxicity,
		opts:       opts,
		holder:     holder,
		log:        zap.L(),
	}
}

// AnalyzeTarget runs the full analysis graph for one submitted target and
// reduces the matches into a case. A nil case return means no branch
// produced a match.
func (a *Analyzer) AnalyzeTarget(ctx context.Context, target *model.Target) (*model.Case, error) {
	g := a.buildGraph(target)
	results, err := g.Execute(ctx)
	if err != nil {
		return nil, err
	}

	// Persist whatever the branches enriched onto the target before
	// deciding about a case.
	if uerr := a.store.UpdateTarget(ctx, *target); uerr != nil {
		a.log.Warn("persisting analyzed target failed",
			zap.String("target_id", target.ID),
			zap.Error(uerr))
	}

	// An index snapshot that never appeared means the hash branch could
	// not run at all. The submission is dropped without a case; forming
	// one from the remaining branches would miss every hash match.
	if qerr := results.Err("index_query"); errors.Is(qerr, index.ErrIndexNotFound) {
		a.log.Error("index snapshot missing, dropping submission",
			zap.String("target_id", target.ID),
			zap.Error(qerr))
		return nil, nil
	}

	agg, _ := results.Value("aggregate").([]string)
	if len(agg) == 0 {
		a.log.Info("analysis produced no matches", zap.String("target_id", target.ID))
		return nil, nil
	}
	return ReduceCase(ctx, a.store, a.holder, target.ID, agg)
}

// buildGraph assembles the analysis DAG for the target's feature set.
// Every branch feeds the aggregate node, which flattens the non-nil
// signal-ID lists.
func (a *Analyzer) buildGraph(target *model.Target) *Graph {
	g := NewGraph()
	var branches []string

	image := target.FeatureSet.Image
	if image != nil && len(image.Data) > 0 {
		g.Add(Node{
			Name: "hash",
			Run: func(ctx context.Context, in Inputs) (any, error) {
				return a.hashImage(image)
			},
		})
		g.Add(Node{
			Name: "index_query",
			Deps: []string{"hash"},
			Run: func(ctx context.Context, in Inputs) (any, error) {
				digest, _ := in["hash"].(string)
				if digest == "" {
					return nil, nil
				}
				return a.queryIndexes(ctx, digest, hashing.MD5Hex(image.Data))
			},
		})
		branches = append(branches, "index_query")

		if a.opts.OCREnabled && a.vision != nil {
			g.Add(Node{
				Name: "ocr",
				Run: func(ctx context.Context, in Inputs) (any, error) {
					return a.runOCR(ctx, image)
				},
			})
			toxDeps := []string{"ocr"}
			if a.opts.TranslateEnabled && a.translator != nil {
				g.Add(Node{
					Name: "translate",
					Deps: []string{"ocr"},
					Run: func(ctx context.Context, in Inputs) (any, error) {
						text, _ := in["ocr"].(*model.TextFeature)
						return a.runTranslate(ctx, text)
					},
				})
				toxDeps = append(toxDeps, "translate")
			}
			if a.opts.ToxicityEnabled && a.toxicity != nil {
				g.Add(Node{
					Name: "toxicity",
					Deps: toxDeps,
					Run: func(ctx context.Context, in Inputs) (any, error) {
						text, _ := in["ocr"].(*model.TextFeature)
						return a.runToxicity(ctx, text)
					},
				})
				branches = append(branches, "toxicity")
			}
		}

		if a.opts.SafeSearchEnabled && a.vision != nil {
			g.Add(Node{
				Name: "safesearch",
				Run: func(ctx context.Context, in Inputs) (any, error) {
					return a.runSafeSearch(ctx, image)
				},
			})
			branches = append(branches, "safesearch")
		}
	}

	text := target.FeatureSet.Text
	if text != nil && text.Data != "" {
		deps := []string{}
		if a.opts.TranslateEnabled && a.translator != nil {
			g.Add(Node{
				Name: "translate_text",
				Run: func(ctx context.Context, in Inputs) (any, error) {
					return a.runTranslate(ctx, text)
				},
			})
			deps = append(deps, "translate_text")
		}
		if a.opts.ToxicityEnabled && a.toxicity != nil {
			g.Add(Node{
				Name: "toxicity_text",
				Deps: deps,
				Run: func(ctx context.Context, in Inputs) (any, error) {
					return a.runToxicity(ctx, text)
				},
			})
			branches = append(branches, "toxicity_text")
		}
	}

	g.Add(Node{
		Name: "aggregate",
		Deps: branches,
		Run: func(ctx context.Context, in Inputs) (any, error) {
			var ids []string
			for _, branch := range branches {
				for _, id := range asStringList(in[branch]) {
					if !containsString(ids, id) {
						ids = append(ids, id)
					}
				}
			}
			return ids, nil
		},
	})
	return g
}

// hashImage computes the perceptual digest and records it on the feature.
func (a *Analyzer) hashImage(image *model.ImageFeature) (string, error) {
	h, err := hashing.FromBytes(image.Data)
	if err != nil {
		return "", eris.Wrap(err, "workflow: hash image")
	}
	image.Digest = h.String()
	return image.Digest, nil
}

// queryIndexes matches the target's digests against the perceptual and
// exact indexes. A missing snapshot is retried briefly (the index may be
// mid-rebuild); if it never appears the error propagates and
// AnalyzeTarget drops the submission.
func (a *Analyzer) queryIndexes(ctx context.Context, dctDigest, md5Digest string) ([]string, error) {
	retry := a.opts.IndexRetry
	retry.ShouldRetry = func(err error) bool {
		return errors.Is(err, index.ErrIndexNotFound)
	}

	var ids []string
	for family, digest := range map[index.Family]string{
		index.FamilyDCT: dctDigest,
		index.FamilyMD5: md5Digest,
	} {
		if digest == "" {
			continue
		}
		ix, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*index.Index, error) {
			return index.Load(ctx, a.store, family)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: load %s index", family)
		}
		matches, err := ix.Query(digest)
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: query %s index", family)
		}
		for m := range matches {
			for _, id := range m.SignalIDs {
				if !containsString(ids, id) {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids, nil
}

func (a *Analyzer) runOCR(ctx context.Context, image *model.ImageFeature) (*model.TextFeature, error) {
	annotation, err := a.vision.DetectText(ctx, image.Data)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: ocr")
	}
	if annotation.Text == "" {
		return nil, nil
	}
	image.OCRText = &model.TextFeature{
		Data:                 annotation.Text,
		DetectedLanguageCode: translate.NormalizeTag(annotation.Language),
	}
	return image.OCRText, nil
}

// runTranslate fills TranslatedData in place. Text already in the target
// language passes through untranslated.
func (a *Analyzer) runTranslate(ctx context.Context, text *model.TextFeature) (*model.TextFeature, error) {
	if text == nil || text.Data == "" {
		return nil, nil
	}
	if translate.IsTarget(text.DetectedLanguageCode, "en") {
		return text, nil
	}

	result, err := a.translator.Translate(ctx, translate.Request{
		Text:   text.Data,
		Source: text.DetectedLanguageCode,
	})
	if err != nil {
		return nil, eris.Wrap(err, "workflow: translate")
	}
	text.TranslatedData = result.Text
	if text.DetectedLanguageCode == "" {
		text.DetectedLanguageCode = result.DetectedSource
	}
	return text, nil
}

// runToxicity scores the text and returns the threat signal ID when the
// THREAT score crosses the threshold. Scoring always uses the original
// text, not the translation: translation can blunt the meaning the scorer
// needs to see. The translated text stays on the feature as metadata for
// reviewers.
func (a *Analyzer) runToxicity(ctx context.Context, text *model.TextFeature) ([]string, error) {
	if text == nil || text.Data == "" {
		return nil, nil
	}

	resp, err := a.toxicity.AnalyzeComment(ctx, perspective.AnalyzeRequest{
		Comment:    perspective.Comment{Text: text.Data},
		DoNotStore: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "workflow: toxicity")
	}

	text.ToxicityScores = make(map[string]float64, len(resp.AttributeScores))
	for attr := range resp.AttributeScores {
		text.ToxicityScores[string(attr)] = resp.Score(attr)
	}

	if resp.Score(perspective.AttributeThreat) < a.opts.ThreatThreshold {
		return nil, nil
	}
	sig, err := a.wellKnownSignal(ctx, model.SourcePerspective, threatSignalContent)
	if err != nil {
		return nil, err
	}
	return []string{sig.ID}, nil
}

// runSafeSearch records the likelihood buckets on the image and returns
// the violence signal ID when the violence likelihood crosses the
// threshold.
func (a *Analyzer) runSafeSearch(ctx context.Context, image *model.ImageFeature) ([]string, error) {
	annotation, err := a.vision.SafeSearch(ctx, image.Data)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: safe search")
	}

	image.AdultLikelihood = toModelLikelihood(annotation.Adult)
	image.SpoofLikelihood = toModelLikelihood(annotation.Spoof)
	image.MedicalLikelihood = toModelLikelihood(annotation.Medical)
	image.ViolenceLikelihood = toModelLikelihood(annotation.Violence)
	image.RacyLikelihood = toModelLikelihood(annotation.Racy)

	if !annotation.Violence.AtLeast(a.opts.ViolenceThreshold) {
		return nil, nil
	}
	sig, err := a.wellKnownSignal(ctx, model.SourceSafeSearch, violenceSignalContent)
	if err != nil {
		return nil, err
	}
	return []string{sig.ID}, nil
}

// wellKnownSignal fetches the service-owned signal for an analyzer
// verdict, creating it on first use.
func (a *Analyzer) wellKnownSignal(ctx context.Context, name model.SourceName, content string) (*model.Signal, error) {
	sig, err := a.store.GetSignalByContent(ctx, content)
	if err == nil {
		return sig, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return a.store.CreateSignal(ctx, model.Signal{
		Content: []model.Content{{Value: content, ContentType: model.ContentTypeAPI}},
		Sources: []model.Source{{Name: name}},
	})
}

func toModelLikelihood(l visionapi.Likelihood) model.Likelihood {
	switch l {
	case visionapi.LikelihoodVeryUnlikely:
		return model.LikelihoodVeryUnlikely
	case visionapi.LikelihoodUnlikely:
		return model.LikelihoodUnlikely
	case visionapi.LikelihoodPossible:
		return model.LikelihoodPossible
	case visionapi.LikelihoodLikely:
		return model.LikelihoodLikely
	case visionapi.LikelihoodVeryLikely:
		return model.LikelihoodVeryLikely
	default:
		return model.LikelihoodUnknown
	}
}

func asStringList(v any) []string {
	ids, _ := v.([]string)
	return ids
}
