package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/incident-autopilot/internal/api"
	"github.com/miradorstack/incident-autopilot/internal/config"
	"github.com/miradorstack/incident-autopilot/internal/dashboard"
	"github.com/miradorstack/incident-autopilot/internal/engine"
	"github.com/miradorstack/incident-autopilot/internal/extract"
	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/repo"
	"github.com/miradorstack/incident-autopilot/internal/session"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

type runOptions struct {
	grpcAddr string
	jsonOut  bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [alert...]",
		Short: "Submit an alert and watch the pipeline",
		Long:  `Submits the alert given as arguments (or read from stdin) and renders each pipeline stage as it is revealed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			alert := strings.Join(args, " ")
			if strings.TrimSpace(alert) == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read alert from stdin: %w", err)
				}
				alert = string(data)
			}
			return runAlert(cmd, opts, alert)
		},
	}
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc", "", "Call the gateway over gRPC at this address instead of HTTP")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the final session state as JSON instead of the dashboard")
	return cmd
}

func runAlert(cmd *cobra.Command, opts *runOptions, alert string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)

	orchestrator, closeFn, err := newOrchestrator(cfg, opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	governance, err := engine.NewGovernanceEngine(cfg.Rules.Path, logger)
	if err != nil {
		return fmt.Errorf("load governance rules: %w", err)
	}
	assessor, err := extract.NewAssessor()
	if err != nil {
		return err
	}

	controller := engine.NewStageController(logger, engine.WallClock{}, engine.StageTimings{
		ReasoningDelay:  cfg.Pipeline.ReasoningDelay,
		GovernanceDelay: cfg.Pipeline.GovernanceDelay,
	})
	notice := make(chan string, 1)
	sess := session.New(logger, orchestrator, controller, session.Options{
		Assessor:   assessor,
		Governance: governance,
		Notifier: session.NotifierFunc(func(message string) {
			select {
			case notice <- message:
			default:
			}
		}),
	})

	updates, unsubscribe := sess.Subscribe(16)
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx, alert) }()

	out := cmd.OutOrStdout()
	renderer := dashboard.NewRenderer(nil)
	finished := false
	var last models.SessionState
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case runErr := <-done:
			finished = true
			done = nil
			if errors.Is(runErr, session.ErrEmptyAlert) {
				return runErr
			}
			if runErr != nil {
				final := sess.State()
				if !opts.jsonOut {
					fmt.Fprintln(out, renderer.Render(final))
					select {
					case message := <-notice:
						fmt.Fprintln(out, message)
					default:
					}
				}
				return printFinal(out, opts, final, runErr)
			}
			if last.ActiveStage == models.StageGovernance {
				return printFinal(out, opts, last, nil)
			}
		case state := <-updates:
			last = state
			if !opts.jsonOut {
				fmt.Fprintln(out, renderer.Render(state))
				fmt.Fprintln(out)
			}
			if finished && state.ActiveStage == models.StageGovernance {
				return printFinal(out, opts, state, nil)
			}
		}
	}
}

func printFinal(w io.Writer, opts *runOptions, state models.SessionState, runErr error) error {
	if opts.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("orchestration failed (%s): %w", state.LastError, runErr)
	}
	return nil
}

func newOrchestrator(cfg *config.Config, opts *runOptions, logger *slog.Logger) (session.Orchestrator, func(), error) {
	if opts.grpcAddr == "" {
		client := repo.NewOrchestratorClient(cfg.Orchestrator.BaseURL, cfg.Orchestrator.Path, cfg.Orchestrator.Timeout)
		logger.Debug("using HTTP orchestrator", slog.String("endpoint", client.Endpoint()))
		return client, func() {}, nil
	}
	conn, err := grpc.NewClient(opts.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial gateway %s: %w", opts.grpcAddr, err)
	}
	return api.NewOrchestratorGRPCClient(conn), func() { _ = conn.Close() }, nil
}
