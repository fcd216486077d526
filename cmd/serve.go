package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-service/internal/api"
	"github.com/sells-group/signal-service/internal/importer"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
	"github.com/sells-group/signal-service/internal/store"
	"github.com/sells-group/signal-service/internal/workflow"
	"github.com/sells-group/signal-service/pkg/perspective"
	"github.com/sells-group/signal-service/pkg/translate"
	"github.com/sells-group/signal-service/pkg/visionapi"
)

var servePort int

// allSources is every importer source the scheduler drives.
var allSources = []model.SourceType{model.SourceTypeFeedAPI, model.SourceTypeFeedFile}

// workerName identifies this process in store locks.
func workerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func buildAnalyzer(st store.Store, holder string) *workflow.Analyzer {
	var visionOpts []visionapi.Option
	if cfg.Analyzers.Vision.BaseURL != "" {
		visionOpts = append(visionOpts, visionapi.WithBaseURL(cfg.Analyzers.Vision.BaseURL))
	}
	var translateOpts []translate.Option
	if cfg.Analyzers.Translate.BaseURL != "" {
		translateOpts = append(translateOpts, translate.WithBaseURL(cfg.Analyzers.Translate.BaseURL))
	}
	var toxicityOpts []perspective.Option
	if cfg.Analyzers.Toxicity.BaseURL != "" {
		toxicityOpts = append(toxicityOpts, perspective.WithBaseURL(cfg.Analyzers.Toxicity.BaseURL))
	}

	opts := workflow.DefaultOptions()
	opts.OCREnabled = cfg.Analyzers.Vision.Enabled
	opts.TranslateEnabled = cfg.Analyzers.Translate.Enabled
	opts.ToxicityEnabled = cfg.Analyzers.Toxicity.Enabled
	opts.SafeSearchEnabled = cfg.Analyzers.SafeSearch.Enabled
	opts.ThreatThreshold = cfg.Workflow.ThreatThreshold
	opts.ViolenceThreshold = visionapi.Likelihood(cfg.Workflow.ViolenceThreshold)

	return workflow.NewAnalyzer(st,
		visionapi.NewClient(cfg.Analyzers.Vision.APIKey, visionOpts...),
		translate.NewClient(cfg.Analyzers.Translate.APIKey, translateOpts...),
		perspective.NewClient(cfg.Analyzers.Toxicity.APIKey, toxicityOpts...),
		holder, opts)
}

func buildPublisher(st store.Store) *workflow.Publisher {
	var deliverer workflow.Deliverer
	if cfg.Review.CallbackURL != "" {
		deliverer = &workflow.WebhookDeliverer{URL: cfg.Review.CallbackURL}
	}
	return workflow.NewPublisher(st, deliverer, cfg.Review.PublishDelay, resilience.DefaultRetryConfig())
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		holder := workerName()
		enricher := workflow.NewEnricher(st, nil, holder)
		analyzer := buildAnalyzer(st, holder)
		publisher := buildPublisher(st)

		runner := importer.NewRunner(st, importer.WithSoftTimeLimit(cfg.Importer.SoftTimeLimit))
		scheduler := workflow.NewScheduler(st, runner, enricher, allSources, workflow.Intervals{
			Import:            cfg.Importer.Interval,
			Reindex:           cfg.Workflow.ReindexInterval,
			Diagnostics:       cfg.Importer.DiagnosticsInterval,
			DiagnosticsWindow: cfg.Importer.DiagnosticsWindow,
		}, cfg.Importer.ChunkSize, holder)

		server := api.NewServer(ctx, st, enricher, analyzer, publisher)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.Router(),
		}

		grp, gctx := errgroup.WithContext(ctx)
		grp.Go(func() error {
			return scheduler.Start(gctx)
		})
		grp.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			return srv.Shutdown(cmd.Context())
		})
		grp.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		return grp.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
