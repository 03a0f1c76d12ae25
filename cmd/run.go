// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
	"github.com/kfalter89/webpilot/internal/agent"
	"github.com/kfalter89/webpilot/internal/browser"
	"github.com/kfalter89/webpilot/internal/llmclient"
	"github.com/kfalter89/webpilot/internal/observability"
	"github.com/kfalter89/webpilot/internal/replay"
)

var (
	runStartURL   string
	runMaxSteps   int
	runSimple     bool
	runStream     bool
	runHeadless   bool
	runReplayFile string
)

var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Run the local agent loop against a freshly launched browser.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "start-url", "", "page to open before the first step")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "override the configured step budget")
	runCmd.Flags().BoolVar(&runSimple, "simple", false, "use the simplified loop with the smaller step budget")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "print step events as they happen")
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "run the browser headless")
	runCmd.Flags().StringVar(&runReplayFile, "replay-file", "", "record replay steps to this JSONL file")
	rootCmd.AddCommand(runCmd)
}

// resolveMaxSteps prefers the --max-steps flag; when it is unset the
// configured agent.max_steps applies. Zero from both sources falls through to
// the engine's built-in budget.
func resolveMaxSteps(flagValue, configured int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configured
}

func runAgent(ctx context.Context, instruction string) error {
	logger := observability.GetLogger()

	modelClient, err := llmclient.NewGoogleClient(appCfg.Agent, logger)
	if err != nil {
		return err
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if !runHeadless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// Force the browser process up before the first action.
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	page := browser.NewDriver(browserCtx, logger)
	if runStartURL != "" {
		if err := page.Navigate(ctx, runStartURL); err != nil {
			return fmt.Errorf("failed to open start URL: %w", err)
		}
	}

	var recorder schemas.ReplayRecorder
	recording := appCfg.Browser.RecordReplay || runReplayFile != ""
	if recording {
		path := runReplayFile
		if path == "" {
			path = "replay.jsonl"
		}
		fileRecorder, err := replay.NewFileRecorder(path, logger)
		if err != nil {
			return err
		}
		defer fileRecorder.Close()
		recorder = fileRecorder
	}

	executor := agent.NewComputerUseExecutor(page, recorder, logger, agent.ExecutorConfig{
		SettleDelay:   appCfg.Browser.SettleDelay,
		ActionDelay:   appCfg.Browser.ActionDelay,
		DefaultWaitMs: appCfg.Browser.DefaultWaitMs,
		Recording:     recording,
		DrawCursor:    appCfg.Browser.DrawCursor,
	})

	var orchestrator *agent.Orchestrator
	if runSimple {
		orchestrator = agent.NewSimpleOrchestrator(modelClient, page, executor, logger)
	} else {
		orchestrator = agent.NewOrchestrator(modelClient, page, executor, logger)
	}

	opts := agent.Options{
		Instruction:  instruction,
		MaxSteps:     resolveMaxSteps(runMaxSteps, appCfg.Agent.MaxSteps),
		SystemPrompt: appCfg.Agent.SystemPrompt,
	}

	var result *schemas.AgentResult
	if runStream {
		handle, err := orchestrator.Stream(ctx, opts)
		if err != nil {
			return err
		}
		for event := range handle.Events() {
			fmt.Fprintf(os.Stdout, "step %d: %d action(s)\n", event.Step, len(event.Actions))
			if event.Reasoning != "" {
				fmt.Fprintf(os.Stdout, "  %s\n", event.Reasoning)
			}
		}
		result, err = handle.Result()
		if err != nil {
			return err
		}
	} else {
		result, err = orchestrator.Execute(ctx, opts)
		if err != nil {
			return err
		}
	}

	logger.Info("Agent run result",
		zap.Bool("success", result.Success),
		zap.Bool("completed", result.Completed),
		zap.Int("actions", len(result.Actions)),
		zap.Int64("input_tokens", result.Usage.InputTokens),
		zap.Int64("output_tokens", result.Usage.OutputTokens))

	fmt.Fprintln(os.Stdout, result.Message)
	if !result.Success {
		return fmt.Errorf("agent did not complete the task")
	}
	return nil
}
