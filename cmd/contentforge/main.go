// Command contentforge is the process entrypoint: it loads
// configuration, wires the durable store, provider adapters, and the
// pipeline, runs startup recovery once, then starts the optional
// recovery sweep and Kafka-backed progress publisher and blocks until
// a termination signal arrives.
//
// The HTTP surface that would call app.Pipeline.Run,
// app.Taxonomy.GenerateTaxonomy, and friends is out of scope here; this
// binary wires the core and keeps it alive so that surface has
// something to call into.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seoasis/contentforge/core/broker"
	"github.com/seoasis/contentforge/core/job"
	"github.com/seoasis/contentforge/core/lynx"
	"github.com/seoasis/contentforge/internal/brief"
	"github.com/seoasis/contentforge/internal/config"
	"github.com/seoasis/contentforge/internal/integration"
	"github.com/seoasis/contentforge/internal/pipeline"
	"github.com/seoasis/contentforge/internal/providers/crawl"
	"github.com/seoasis/contentforge/internal/providers/keywordvolume"
	"github.com/seoasis/contentforge/internal/providers/llm"
	"github.com/seoasis/contentforge/internal/providers/nlp"
	"github.com/seoasis/contentforge/internal/providers/pop"
	"github.com/seoasis/contentforge/internal/providers/serp"
	"github.com/seoasis/contentforge/internal/recovery"
	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/internal/store/memory"
	"github.com/seoasis/contentforge/internal/store/postgres"
	"github.com/seoasis/contentforge/internal/taxonomy"
	"github.com/seoasis/contentforge/internal/telemetry"
)

const (
	providerPOP           = "pop"
	providerLLM           = "llm"
	providerKeywordVolume = "keyword_volume"
	providerNLP           = "nlp"
	providerCrawl         = "crawl"
	providerSERP          = "serp"
)

// app holds every wired component. The HTTP layer (out of scope)
// would take a *app and route requests into its fields; here main
// only drives the background jobs that must run without a caller.
type app struct {
	Store     store.Store
	KwVolume  *keywordvolume.Client
	NLP       *nlp.Client
	Crawl     *crawl.Client
	SERP      *serp.Client
	Brief     *brief.Orchestrator
	Pipeline  *pipeline.Pipeline
	Taxonomy  *taxonomy.Service
	Recovery  *recovery.Service
	Sweeper   *recovery.Sweeper
	closeFunc func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve Prometheus metrics on")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath, providerPOP, providerLLM, providerKeywordVolume, providerNLP, providerCrawl, providerSERP)
	if err != nil {
		logger.Error("config: failed to load", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewProviderMetrics(registry)
	go serveMetrics(*metricsAddr, registry, logger)

	a := newApp(cfg, logger, metrics)
	defer a.closeFunc()

	ctx := context.Background()
	summary, err := a.Recovery.RecoverAll(ctx)
	if err != nil {
		logger.Error("recovery: startup sweep failed", slog.Any("error", err))
	} else {
		logger.Info("recovery: startup sweep complete",
			slog.Int("total_found", summary.TotalFound),
			slog.Int("total_recovered", summary.TotalRecovered),
			slog.Int("total_failed", summary.TotalFailed))
	}

	runner := lynx.New(&lynx.Options{Jobs: []job.Job{a.Sweeper}})
	if err := runner.Run(); err != nil {
		logger.Error("contentforge: exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger, metrics *telemetry.ProviderMetrics) *app {
	st, closeStore := openStore(cfg, logger)
	integrations := newIntegrations(cfg, logger, metrics)

	popClient := pop.New(integrations[providerPOP], cfg.Providers[providerPOP].APIKey,
		pop.Config{PollInterval: cfg.PopTaskPollInterval, PollTimeout: cfg.PopTaskTimeout}, logger)
	llmClient := llm.New(integrations[providerLLM], cfg.Providers[providerLLM].APIKey, "gpt-4o-mini", "/v1/chat/completions")

	briefOrch := brief.New(popClient, st, logger)
	progressPub := newProgressPublisher(cfg, logger)
	pl := pipeline.New(st, briefOrch, llmClient, pipeline.NewRegistry(), progressPub,
		pipeline.Config{ContentGenerationConcurrency: cfg.ContentGenerationConcurrency}, logger)

	recoverySvc := recovery.New(st, cfg.StaleThreshold(), logger)
	sweepSpec := cfg.RecoverySweepCron
	if sweepSpec == "" {
		sweepSpec = "0 */5 * * * *"
	}

	return &app{
		Store:     st,
		KwVolume:  keywordvolume.New(integrations[providerKeywordVolume], cfg.Providers[providerKeywordVolume].APIKey, 8),
		NLP:       nlp.New(integrations[providerNLP], cfg.Providers[providerNLP].APIKey),
		Crawl:     crawl.New(integrations[providerCrawl], 8),
		SERP:      serp.New(integrations[providerSERP], cfg.Providers[providerSERP].APIKey),
		Brief:     briefOrch,
		Pipeline:  pl,
		Taxonomy:  taxonomy.New(llmClient, st, logger),
		Recovery:  recoverySvc,
		Sweeper:   recovery.NewSweeper(recoverySvc, sweepSpec, logger),
		closeFunc: closeStore,
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("config: database_url not set, using in-memory store (development only)")
		st := memory.New()
		return st, func() { _ = st.Close() }
	}

	st, err := postgres.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("store: failed to open postgres", slog.Any("error", err))
		os.Exit(1)
	}
	return st, func() { _ = st.Close() }
}

func newIntegrations(cfg *config.Config, logger *slog.Logger, metrics *telemetry.ProviderMetrics) map[string]*integration.Client {
	out := map[string]*integration.Client{}
	for _, name := range []string{providerPOP, providerLLM, providerKeywordVolume, providerNLP, providerCrawl, providerSERP} {
		pc := cfg.Providers[name]
		out[name] = integration.New(integration.Config{
			Name:             name,
			BaseURL:          pc.APIURL,
			Timeout:          pc.Timeout,
			MaxRetries:       pc.MaxRetries,
			RetryDelay:       pc.RetryDelay,
			FailureThreshold: pc.CircuitFailureThreshold,
			RecoveryTimeout:  pc.CircuitRecoveryTimeout,
		}, logger, metrics)
	}
	return out
}

// newProgressPublisher wires the optional Kafka-backed progress
// publisher (spec's progress events are best-effort); no broker
// configured yields a no-op publisher.
func newProgressPublisher(cfg *config.Config, logger *slog.Logger) *pipeline.ProgressPublisher {
	if cfg.KafkaBroker == "" {
		return pipeline.NewProgressPublisher(nil)
	}

	var b broker.Broker
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("broker: kafka dial failed, progress events disabled", slog.Any("error", r))
				b = nil
			}
		}()
		b = broker.NewKafka(&broker.KafkaConfig{
			Address:      cfg.KafkaBroker,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
		})
	}()
	return pipeline.NewProgressPublisher(b)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics: server stopped", slog.Any("error", err))
	}
}
