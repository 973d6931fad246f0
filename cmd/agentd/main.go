package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voxelmind.ai/internal/agent"
	"voxelmind.ai/internal/bridge"
	"voxelmind.ai/internal/config"
	"voxelmind.ai/internal/mgmt"
	"voxelmind.ai/internal/oracle"
	"voxelmind.ai/internal/persistence/memstore"
	"voxelmind.ai/internal/persistence/mirror"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (optional; defaults apply without one)")
		traitsPath = flag.String("traits", "", "trait profiles yaml (empty: built-in fallback profile)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[agentd] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	switch cfg.Log.Level {
	case "quiet":
		logger.SetOutput(io.Discard)
	case "debug":
		logger.SetFlags(logger.Flags() | log.Lshortfile)
	}

	var traits agent.TraitSet
	if *traitsPath != "" {
		traits, err = agent.LoadTraits(*traitsPath)
		if err != nil {
			logger.Fatalf("load traits: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	provider, err := buildOracle(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("oracle: %v", err)
	}
	logger.Printf("oracle provider: %s", provider.Name())

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	store, err := memstore.Open(filepath.Join(cfg.Data.Dir, "memory.sqlite"))
	if err != nil {
		logger.Fatalf("open memory store: %v", err)
	}
	defer store.Close()

	journalDir := filepath.Join(cfg.Data.Dir, "journal")
	var mir *mirror.Mirror
	if cfg.Mirror.Endpoint != "" {
		client, err := mirror.NewClient(cfg.Mirror.Endpoint, cfg.Mirror.Bucket, cfg.Mirror.Key, cfg.Mirror.Secret)
		if err != nil {
			logger.Fatalf("init mirror: %v", err)
		}
		mir = mirror.New(client, journalDir, cfg.Mirror.Prefix, cfg.Mirror.Workers, logger)
		defer mir.Close()
		logger.Printf("mirroring journals to %s/%s", cfg.Mirror.Endpoint, cfg.Mirror.Bucket)
	}
	var onSegment func(string)
	if mir != nil {
		onSegment = mir.Enqueue
	}

	env := bridge.NewWSEnv(cfg.World.URL, "voxelmind")
	defer env.CloseAll()

	mgr, err := agent.NewManager(agent.Config{
		Env:       env,
		Oracle:    provider,
		Archive:   store,
		OnSegment: onSegment,
		DataDir:   cfg.Data.Dir,
		Traits:    traits,
		Pol:       policiesFrom(cfg),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("manager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Boot(ctx, bootSpecs(cfg)); err != nil {
		logger.Fatalf("boot agents: %v", err)
	}
	if n := len(cfg.Agents); n > 0 {
		logger.Printf("booted %d agent(s) against %s", n, cfg.World.URL)
	}

	srv := &http.Server{
		Addr:              cfg.Mgmt.Addr,
		Handler:           mgmt.NewServer(ctx, mgr, store, mir, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("management listening on %s", cfg.Mgmt.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// buildOracle constructs the reasoning provider from configuration and wraps
// it in the retry layer when retries are enabled.
func buildOracle(ctx context.Context, cfg *config.Config, logger *log.Logger) (oracle.Provider, error) {
	var p oracle.Provider
	switch cfg.Oracle.Provider {
	case "scripted":
		p = oracle.NewScripted()
	case "ollama":
		p = oracle.NewOllama(cfg.Oracle.Endpoint, cfg.Oracle.Model)
	case "gemini":
		g, err := oracle.NewGemini(ctx, cfg.Oracle.Key, cfg.Oracle.Model)
		if err != nil {
			return nil, err
		}
		p = g
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Oracle.Provider)
	}
	if cfg.Oracle.Retries > 0 {
		policy := oracle.DefaultRetryPolicy()
		policy.MaxRetries = cfg.Oracle.Retries
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			logger.Printf("oracle retry %d in %s: %v", attempt, delay, err)
		}
		p = oracle.WithRetry(p, policy)
	}
	return p, nil
}

// policiesFrom maps the configured cadences and limits onto the compiled
// policy defaults. Zero intervals keep the compiled value; a zero rejoin
// budget is meaningful and disables rejoins.
func policiesFrom(cfg *config.Config) agent.Policies {
	pol := agent.DefaultPolicies()

	if cfg.Mind.Perception > 0 {
		pol.Perception.Interval = cfg.Mind.Perception
	}
	if cfg.Mind.Social > 0 {
		pol.Social.Interval = cfg.Mind.Social
	}
	if cfg.Mind.Goalgen > 0 {
		pol.GoalGen.Interval = cfg.Mind.Goalgen
	}
	if cfg.Mind.Awareness > 0 {
		pol.Action.Interval = cfg.Mind.Awareness
	}
	if cfg.Mind.Consolidation > 0 {
		pol.Consolidation.Interval = cfg.Mind.Consolidation
	}
	if cfg.Mind.Controller > 0 {
		pol.Controller.Interval = cfg.Mind.Controller
	}

	pol.Consolidation.WorkingCap = cfg.Mind.Working
	pol.Consolidation.ShortCap = cfg.Mind.Short
	pol.Consolidation.LongCap = cfg.Mind.Long

	if cfg.Bridge.Tick > 0 {
		pol.Bridge.Interval = cfg.Bridge.Tick
	}
	if cfg.Bridge.Steps > 0 {
		pol.Bridge.DefaultSteps = cfg.Bridge.Steps
	}
	if cfg.Bridge.Boundary > 0 {
		pol.Bridge.Recovery.BoundaryRadius = cfg.Bridge.Boundary
	}
	pol.Bridge.Recovery.RejoinBudget = cfg.Bridge.Rejoins
	return pol
}

func bootSpecs(cfg *config.Config) []agent.CreateSpec {
	specs := make([]agent.CreateSpec, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		specs = append(specs, agent.CreateSpec{ID: a.ID, Name: a.Name, Role: a.Role})
	}
	return specs
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
