// Command supervisor runs supervised multi-worker sessions from the command
// line: a Controller routes a task between researcher, analyst, writer and
// reviewer workers until it is complete, checkpointing every step.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/supervisor/config"
	"github.com/hupe1980/supervisor/core"
)

var (
	// Global flags
	configPath    string
	teamPath      string
	provider      string
	modelName     string
	checkpointDB  string
	maxIterations int
	verbose       bool
	jsonOutput    bool
)

var rootCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Supervised multi-worker task orchestration",
	Long: `supervisor delegates a task to a team of specialized workers.

A Controller decides after every step which worker acts next, or FINISH.
Each step is checkpointed so interrupted sessions can be resumed by thread id.
Use a sqlite checkpoint store (--checkpoint-db) to resume across processes.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Start a new session for a task and run it to completion",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			threadID, err := a.sup.StartSession(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", threadID)
			return stream(ctx, cmd.OutOrStdout(), a, threadID)
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [task...]",
	Short: "Run one session per task concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			results, err := a.sup.RunBatch(ctx, args)
			for _, res := range results {
				if res != nil {
					printResult(cmd.OutOrStdout(), res.ThreadID, res.Task, res.Results, res.Finished)
				}
			}
			return err
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [thread-id]",
	Short: "Resume a session from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return stream(ctx, cmd.OutOrStdout(), a, args[0])
		})
	},
}

var resultCmd = &cobra.Command{
	Use:   "result [thread-id]",
	Short: "Show the latest result of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.sup.GetResult(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res.ThreadID, res.Task, res.Results, res.Finished)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [thread-id]",
	Short: "List every checkpoint of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			cps, err := a.sup.History(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cps)
			}
			for _, cp := range cps {
				next := cp.State.NextAgent
				if next == "" {
					next = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  iteration=%d  next=%s  results=%d\n",
					cp.Sequence, cp.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
					cp.State.IterationCount, next, len(cp.State.Results))
			}
			return nil
		})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "supervisor.yaml", "runtime configuration file")
	pf.StringVar(&teamPath, "team", "", "HCL team definition (overrides the config file)")
	pf.StringVar(&provider, "provider", "", "model provider: openai, anthropic, gemini or mock")
	pf.StringVar(&modelName, "model", "", "model name")
	pf.StringVar(&checkpointDB, "checkpoint-db", "", "sqlite checkpoint database path")
	pf.IntVar(&maxIterations, "max-iterations", 0, "iteration ceiling per session")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&jsonOutput, "json", false, "print JSON")

	rootCmd.AddCommand(runCmd, batchCmd, resumeCmd, resultCmd, historyCmd)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if teamPath != "" {
		cfg.Team = teamPath
	}
	if provider != "" {
		cfg.Model.Provider = provider
	}
	if modelName != "" {
		cfg.Model.Name = modelName
	}
	if checkpointDB != "" {
		cfg.Checkpoint.Driver = "sqlite"
		cfg.Checkpoint.Path = checkpointDB
	}
	if maxIterations > 0 {
		cfg.MaxIterations = maxIterations
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	return cfg, nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

// stream resumes threadID and prints its events as they arrive.
func stream(ctx context.Context, out io.Writer, a *app, threadID string) error {
	events, err := a.sup.ResumeSession(ctx, threadID)
	if err != nil {
		return err
	}

	var runErr error
	for ev := range events {
		if jsonOutput {
			if err := writeJSON(out, ev); err != nil {
				return err
			}
		} else {
			printEvent(out, ev)
		}
		if ev.Kind == core.EventError {
			runErr = ev.Err
		}
	}

	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		printInterrupted(out, a.durable, threadID)
		return nil
	}

	if jsonOutput {
		return nil
	}

	res, err := a.sup.GetResult(context.WithoutCancel(ctx), threadID)
	if err != nil {
		return err
	}
	printResult(out, res.ThreadID, res.Task, res.Results, res.Finished)

	return nil
}

func printInterrupted(out io.Writer, durable bool, threadID string) {
	if durable {
		fmt.Fprintf(out, "interrupted; resume with: supervisor resume %s\n", threadID)
		return
	}
	fmt.Fprintln(out, "interrupted; checkpoints were kept in memory only, rerun with --checkpoint-db to make sessions resumable")
}

func printEvent(out io.Writer, ev core.StepEvent) {
	switch ev.Kind {
	case core.EventProgress:
		fmt.Fprintf(out, "[%d] %s: %s\n", ev.Iteration, ev.Worker, truncate(ev.Output, 200))
	case core.EventFinish:
		fmt.Fprintf(out, "finished after %d iterations (%s)\n", ev.Iteration, ev.Reason)
	case core.EventError:
		fmt.Fprintf(out, "failed at iteration %d: %s (resume from checkpoint %d)\n", ev.Iteration, ev.Error, ev.Sequence)
	}
}

func printResult(out io.Writer, threadID, task string, results map[string]string, finished bool) {
	fmt.Fprintf(out, "\nthread:   %s\ntask:     %s\nfinished: %t\n", threadID, task, finished)
	for _, name := range sortedKeys(results) {
		fmt.Fprintf(out, "\n== %s ==\n%s\n", name, results[name])
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
