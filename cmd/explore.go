// -- cmd/explore.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/advisor"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/browser"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/budget"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/explorer"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/findings"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/loopguard"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/observability"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/personas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/reporting"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/store"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/tools"
)

var (
	exploreGoal     string
	exploreMaxSteps int
	exploreResumeID string
	exploreHeadful  bool
)

var exploreCmd = &cobra.Command{
	Use:   "explore [target-url]",
	Short: "Run an exploratory testing session against a target web application.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExplore,
}

func init() {
	exploreCmd.Flags().StringVar(&exploreGoal, "goal", "", "testing objective (overrides config)")
	exploreCmd.Flags().IntVar(&exploreMaxSteps, "max-steps", 0, "global step ceiling (overrides config)")
	exploreCmd.Flags().StringVar(&exploreResumeID, "resume", "", "resume a paused session by id")
	exploreCmd.Flags().BoolVar(&exploreHeadful, "headful", false, "run the browser with a visible window")
	rootCmd.AddCommand(exploreCmd)
}

// exploreComponents holds the wired dependency graph for one run.
type exploreComponents struct {
	session   *explorer.Session
	machine   *explorer.Machine
	collector *findings.Collector
	browser   *browser.Adapter
	reporter  *reporting.Reporter
	progress  chan explorer.ProgressEvent
	dbPool    store.DBPool
}

func (c *exploreComponents) shutdown(ctx context.Context) {
	if c.browser != nil {
		c.browser.Close()
	}
	if c.collector != nil {
		if err := c.collector.Close(ctx); err != nil {
			observability.GetLogger().Error("Failed to close finding sink", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		c.dbPool.Close()
	}
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	cfg := appCfg

	applyExploreFlags(cfg, args)
	if cfg.Exploration.TargetURL == "" && exploreResumeID == "" {
		return fmt.Errorf("a target URL argument or exploration.target_url is required")
	}

	components, err := initializeExploreComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.shutdown(context.Background())

	logger.Info("Exploration starting",
		zap.String("session_id", components.session.ID),
		zap.String("target", components.session.TargetURL),
		zap.Int("max_steps", components.session.MaxSteps))

	var result *explorer.Result
	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(components.progress)
		var runErr error
		result, runErr = components.machine.Run(runCtx)
		return runErr
	})
	g.Go(func() error {
		for ev := range components.progress {
			fmt.Printf("step %-4d findings %-3d %s\n", ev.Step, ev.FindingsCount, ev.URL)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("exploration failed: %w", err)
	}

	path, err := components.reporter.Write(result)
	if err != nil {
		return err
	}

	fmt.Printf("\nSession %s stopped: %s\n", result.SessionID, result.StoppedReason)
	fmt.Printf("Steps: %d  Findings: %d  Tokens: %d\n",
		result.TotalSteps, len(result.Findings), result.TokenUsage.TotalTokens)
	fmt.Printf("Report: %s\n", path)
	return nil
}

func applyExploreFlags(cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.Exploration.TargetURL = args[0]
	}
	if exploreGoal != "" {
		cfg.Exploration.Goal = exploreGoal
	}
	if exploreMaxSteps > 0 {
		cfg.Exploration.MaxSteps = exploreMaxSteps
	}
	if exploreHeadful {
		cfg.Browser.Headless = false
	}
}

// initializeExploreComponents wires the full dependency graph: stores and
// sink (postgres when a database URL is configured, files otherwise), the
// advisor gateway, guard, evaluator, browser, tools and personas, and
// finally the state machine that owns them.
func initializeExploreComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*exploreComponents, error) {
	c := &exploreComponents{}

	// Storage backends.
	var (
		sessionStore explorer.SessionStore
		persister    findings.Persister
		err          error
	)
	if cfg.Database.URL != "" {
		c.dbPool, err = store.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		sessionStore, err = store.NewPostgresStore(ctx, c.dbPool, logger)
		if err != nil {
			c.dbPool.Close()
			return nil, err
		}
		persister, err = findings.NewPostgresPersister(ctx, c.dbPool, logger)
		if err != nil {
			c.dbPool.Close()
			return nil, err
		}
	} else {
		sessionStore, err = store.NewFileStore(cfg.Store.Dir, logger)
		if err != nil {
			return nil, err
		}
		persister, err = findings.NewFilePersister(cfg.Findings.File)
		if err != nil {
			return nil, err
		}
	}
	c.collector = findings.NewCollector(logger, persister, cfg.Findings.BatchSize)

	// Session: fresh or resumed.
	if exploreResumeID != "" {
		c.session, err = sessionStore.Load(ctx, exploreResumeID)
		if err != nil {
			return nil, fmt.Errorf("cannot resume session: %w", err)
		}
		if c.session.Status != explorer.StatusPaused && c.session.Status != explorer.StatusIdle {
			return nil, fmt.Errorf("session %s is %s, only paused sessions can resume", c.session.ID, c.session.Status)
		}
		logger.Info("Resuming session",
			zap.String("session_id", c.session.ID),
			zap.Int("completed_steps", c.session.CurrentStep))
	} else {
		c.session = explorer.NewSession(
			cfg.Exploration.TargetURL,
			cfg.Exploration.Goal,
			cfg.Exploration.MaxSteps,
			cfg.Exploration.MaxDuration,
		)
	}

	// Advisor pool and gateway.
	backends, err := advisor.BuildBackends(cfg.Advisor, logger)
	if err != nil {
		return nil, err
	}
	gateway, err := advisor.NewGateway(logger, cfg.Advisor, backends)
	if err != nil {
		return nil, err
	}
	logger.Info("Advisor pool ready", zap.Strings("backends", backendNames(backends)))

	// Browser and tools.
	c.browser, err = browser.New(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewDefaultRegistry(logger)
	if err != nil {
		return nil, err
	}

	suggester, err := personas.Build(cfg.Exploration.Personas, logger)
	if err != nil {
		return nil, err
	}

	c.reporter, err = reporting.New(cfg.Report, logger)
	if err != nil {
		return nil, err
	}

	c.progress = make(chan explorer.ProgressEvent, 16)
	c.machine = explorer.NewMachine(
		logger,
		c.session,
		gateway,
		loopguard.New(cfg.LoopGuard, logger),
		budget.New(cfg.PageBudget),
		c.browser,
		registry,
		c.collector,
		explorer.Options{
			Store:              sessionStore,
			Suggester:          suggester,
			Progress:           c.progress,
			CheckpointInterval: cfg.Exploration.CheckpointInterval,
		},
	)
	return c, nil
}

func backendNames(backends []advisor.Backend) []string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	return names
}
