// File: cmd/session.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
	"github.com/kfalter89/webpilot/internal/observability"
	"github.com/kfalter89/webpilot/internal/protocol"
)

var (
	sessionExternalID string
	sessionFallback   bool
	sessionSelfHeal   bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run operations against a hosted remote session.",
}

var sessionActCmd = &cobra.Command{
	Use:   "act [instruction]",
	Short: "Perform one action on the remote page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *protocol.Client) error {
			result, err := protocol.Dispatch[json.RawMessage](ctx, client, schemas.OperationAct,
				map[string]string{"action": args[0]}, nil)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var sessionExtractCmd = &cobra.Command{
	Use:   "extract [instruction]",
	Short: "Extract structured data from the remote page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *protocol.Client) error {
			result, err := protocol.Dispatch[json.RawMessage](ctx, client, schemas.OperationExtract,
				map[string]string{"instruction": args[0]}, nil)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var sessionObserveCmd = &cobra.Command{
	Use:   "observe [instruction]",
	Short: "List candidate actions on the remote page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *protocol.Client) error {
			result, err := protocol.Dispatch[json.RawMessage](ctx, client, schemas.OperationObserve,
				map[string]string{"instruction": args[0]}, nil)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var sessionGotoCmd = &cobra.Command{
	Use:   "goto [url]",
	Short: "Navigate the remote page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *protocol.Client) error {
			result, err := protocol.Dispatch[json.RawMessage](ctx, client, schemas.OperationNavigate,
				map[string]string{"url": args[0]}, url.Values{})
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var sessionAgentCmd = &cobra.Command{
	Use:   "agent [instruction]",
	Short: "Run the hosted agent loop inside the remote session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *protocol.Client) error {
			result, err := protocol.Dispatch[schemas.AgentResult](ctx, client, schemas.OperationAgentExecute,
				map[string]string{"instruction": args[0]}, nil)
			if err != nil {
				return err
			}

			usage, err := client.GetReplayMetrics(ctx)
			if err != nil {
				observability.GetLogger().Warn("Could not fetch replay metrics", zap.Error(err))
			} else {
				observability.GetLogger().Info("Session usage",
					zap.Int64("total_prompt_tokens", usage.Total.PromptTokens),
					zap.Int64("total_completion_tokens", usage.Total.CompletionTokens),
					zap.Int64("agent_inference_ms", usage.Agent.InferenceTimeMs))
			}
			return printJSON(result)
		})
	},
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionExternalID, "external-session-id", "", "session id created out of band")
	sessionCmd.PersistentFlags().BoolVar(&sessionFallback, "external-session-fallback", false, "target the external session when the server one is unavailable")
	sessionCmd.PersistentFlags().BoolVar(&sessionSelfHeal, "self-heal", false, "let the server retry failed selectors")
	sessionCmd.AddCommand(sessionActCmd, sessionExtractCmd, sessionObserveCmd, sessionGotoCmd, sessionAgentCmd)
	rootCmd.AddCommand(sessionCmd)
}

// withSession starts a hosted session, runs fn against it, and always posts
// the teardown signal afterwards.
func withSession(ctx context.Context, fn func(context.Context, *protocol.Client) error) error {
	logger := observability.GetLogger()

	client, err := protocol.NewClient(appCfg.Client, logger)
	if err != nil {
		return err
	}

	_, err = client.StartSession(ctx, schemas.StartSessionParams{
		ModelName:                  appCfg.Agent.ModelName,
		SystemPrompt:               appCfg.Agent.SystemPrompt,
		SelfHeal:                   sessionSelfHeal,
		ExternalSessionID:          sessionExternalID,
		UseExternalSessionFallback: sessionFallback,
	})
	if err != nil {
		return err
	}
	defer func() {
		if _, endErr := client.EndSession(context.WithoutCancel(ctx)); endErr != nil {
			logger.Warn("Session teardown failed", zap.Error(endErr))
		}
	}()

	return fn(ctx, client)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
