package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokencalls/signalwatch/internal/bootstrap"
	"github.com/tokencalls/signalwatch/internal/config"
	"github.com/tokencalls/signalwatch/internal/coordinator"
	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/lifecycle"
	"github.com/tokencalls/signalwatch/internal/message"
	"github.com/tokencalls/signalwatch/internal/outcome"
	"github.com/tokencalls/signalwatch/internal/persistence"
	"github.com/tokencalls/signalwatch/internal/priceengine"
	"github.com/tokencalls/signalwatch/internal/queue"
	"github.com/tokencalls/signalwatch/internal/reputation"
	"github.com/tokencalls/signalwatch/internal/resilience"
	"github.com/tokencalls/signalwatch/internal/sentiment"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
	"github.com/tokencalls/signalwatch/internal/transport"
	"github.com/tokencalls/signalwatch/internal/transport/ws"
	"github.com/tokencalls/signalwatch/internal/writer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signalwatch",
	Short: "Tracks chat-channel token calls through to their price outcomes",
	Long: `signalwatch watches chat channels for token mentions, resolves each
mention to an on-chain address, and tracks its price from the moment of the
call through a forward window, scoring channels by the outcomes they produce.`,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Resume or run a one-shot historical backfill over configured channels",
	RunE:  runBackfill,
}

var runLiveCmd = &cobra.Command{
	Use:   "run",
	Short: "Subscribe to configured channels and track signals live",
	RunE:  runLive,
}

var (
	backfillLimit    int
	backfillChannels []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/signalwatch.yaml", "path to the YAML configuration file")

	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "override historical_scraper_limit from config")
	backfillCmd.Flags().StringSliceVar(&backfillChannels, "channels", nil, "override the configured channel list")

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(runLiveCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds every collaborator wired from a single Config, shared by
// both the backfill and live-run commands.
type runtime struct {
	cfg     *config.Config
	coord   *coordinator.Coordinator
	proc    *message.Processor
	prog    persistence.ScrapingProgressStore
	rep     *reputation.Engine
	manager *shutdownRequester
}

// shutdownRequester satisfies queue.ShutdownRequester without the queue
// package importing lifecycle, per its own doc comment: it just cancels the
// process context when the consumer gives up on a message stream.
type shutdownRequester struct {
	cancel context.CancelFunc
}

func (s *shutdownRequester) RequestShutdown(reason string) {
	log.Error().Str("reason", reason).Msg("requesting shutdown from queue consumer")
	s.cancel()
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	limiter := resilience.NewMultiRateLimiter()
	breaker := resilience.NewMultiBreaker()
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		limiter.Register(name, pc)
		breaker.Register(name, pc)
	}
	if err := resilience.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register telemetry: %w", err)
	}

	engine := priceengine.New(limiter, breaker, 10_000)
	wireHTTPProviders(engine, cfg)

	registry := tokenregistry.New(convertMajors(cfg.Majors), cfg.AmbiguousTickers)

	var reader deadtoken.OnChainReader
	if pc, ok := cfg.Provider("evm-rpc"); ok && pc.Enabled {
		r, err := deadtoken.NewEVMReader(pc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("build evm reader: %w", err)
		}
		reader = r
	}

	blacklist, err := persistence.NewFileBlacklistStore(cfg.DataRoot + "/dead_tokens_blacklist.json")
	if err != nil {
		return nil, fmt.Errorf("open blacklist store: %w", err)
	}
	detector := deadtoken.New(reader, blacklist)

	active, err := persistence.NewFileActiveStore(cfg.DataRoot + "/performance/tracking.json")
	if err != nil {
		return nil, fmt.Errorf("open active store: %w", err)
	}
	completed, err := persistence.NewFileCompletedStore(cfg.DataRoot + "/completed_history.json")
	if err != nil {
		return nil, fmt.Errorf("open completed store: %w", err)
	}
	progress, err := persistence.NewFileScrapingProgressStore(cfg.DataRoot + "/scraped_channels.json")
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}
	tracker := outcome.New(active, completed)

	var sink writer.SheetSink
	w := writer.New(cfg.OutputRoot, sink)

	coordCfg := coordinator.Config{
		PerAddressParallelism:  cfg.PerAddressParallelism,
		HistoricalEntryTimeout: cfg.Timeouts.HistoricalEntry(),
		ForwardATHTimeout:      cfg.Timeouts.ForwardATH(),
		CurrentPriceCacheTTL:   300 * time.Second,
		ForwardATHWindowDays:   cfg.ForwardATHWindowDays,
	}
	coord := coordinator.New(coordCfg, registry, detector, engine, nil, tracker, w)

	proc := message.New(registry, sentiment.NewLexiconAnalyzer(), cfg.EngagementICMax, cfg.ConfidenceThreshold, cfg.MinMessageLength)

	rep := reputation.New(completed)

	return &runtime{cfg: cfg, coord: coord, proc: proc, prog: progress, rep: rep}, nil
}

// wireHTTPProviders registers the configured HTTP-backed price providers
// against the chain fallback order fixed in priceengine.New.
func wireHTTPProviders(engine *priceengine.Engine, cfg *config.Config) {
	if pc, ok := cfg.Provider("general-1"); ok && pc.Enabled {
		engine.Register(priceengine.NewGeneral1(pc.BaseURL))
	}
	if pc, ok := cfg.Provider("general-2"); ok && pc.Enabled {
		engine.Register(priceengine.NewGeneral2(pc.BaseURL))
	}
	if pc, ok := cfg.Provider("dex-aggregator"); ok && pc.Enabled {
		engine.Register(priceengine.NewDexAggregator(pc.BaseURL))
	}
	if pc, ok := cfg.Provider("solana-specialist"); ok && pc.Enabled {
		engine.Register(priceengine.NewSolanaSpecialist(pc.BaseURL))
	}
}

func convertMajors(specs []config.TokenSpec) []tokenregistry.TokenSpec {
	out := make([]tokenregistry.TokenSpec, 0, len(specs))
	for _, s := range specs {
		addrs := make(map[domainmodel.Chain]string, len(s.CanonicalAddresses))
		for chain, addr := range s.CanonicalAddresses {
			addrs[domainmodel.Chain(chain)] = addr
		}
		out = append(out, tokenregistry.TokenSpec{
			Ticker:             s.Ticker,
			CanonicalAddresses: addrs,
			MinPriceUSD:        s.MinPriceUSD,
			MinMarketCapUSD:    s.MinMarketCapUSD,
		})
	}
	return out
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	limit := cfg.HistoricalScraperLimit
	if backfillLimit > 0 {
		limit = backfillLimit
	}
	channels := cfg.Channels
	if len(backfillChannels) > 0 {
		channels = backfillChannels
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels configured: set channels in %s or pass --channels", configPath)
	}

	client := ws.NewClient(cfg.ChatGatewayURL)
	defer client.Close()

	b := bootstrap.New(client, rt.proc, rt.coord, rt.prog, limit)
	b.Run(cmd.Context(), channels)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("no channels configured in %s", configPath)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	rt.manager = &shutdownRequester{cancel: cancel}

	q := queue.New(cfg.PriorityQueueCapacity)
	handler := func(ctx context.Context, pm domainmodel.ProcessedMessage) error {
		return rt.coord.Process(ctx, pm)
	}
	consumer := queue.NewConsumer(q, handler, rt.manager)

	client := ws.NewClient(cfg.ChatGatewayURL)

	manager := lifecycle.New()
	manager.RegisterCleanup("close chat transport", func(ctx context.Context) error {
		return client.Close()
	})
	manager.RegisterCleanup("drain queue", func(ctx context.Context) error {
		q.Close()
		return nil
	})
	manager.RegisterCleanup("final reputation recompute", func(ctx context.Context) error {
		_, err := rt.rep.Recompute(ctx)
		return err
	})

	startErr := manager.Start(ctx, func(ctx context.Context) error {
		subscribeHandler := func(ctx context.Context, event domainmodel.MessageEvent) error {
			pm := rt.proc.Process(event)
			return q.Enqueue(ctx, pm)
		}
		for _, channelID := range cfg.Channels {
			if err := client.Subscribe(ctx, channelID, subscribeHandler); err != nil {
				return fmt.Errorf("subscribe to channel %s: %w", channelID, err)
			}
		}
		return nil
	})
	if startErr != nil {
		return startErr
	}

	go consumer.Run(ctx)
	go runReputationLoop(ctx, rt.rep, time.Duration(cfg.UpdateIntervalSeconds)*time.Second)

	log.Info().Strs("channels", cfg.Channels).Msg("live tracking started")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("lifecycle shutdown reported errors")
	}
	log.Info().Msg("live tracking stopped")

	return nil
}

// runReputationLoop recomputes every channel's reputation on a fixed
// interval until ctx is cancelled.
func runReputationLoop(ctx context.Context, rep *reputation.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := rep.Recompute(ctx); err != nil {
				log.Error().Err(err).Msg("reputation recompute failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

var _ transport.ChatTransport = (*ws.Client)(nil)
