package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const appName = "evidengine"

func Execute(ctx context.Context) error {
	var (
		cfgPath string
		pretty  bool
	)

	root := &cobra.Command{
		Use:   appName,
		Short: "Evidence-softmax probability engine for real-time prediction markets",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVar(&pretty, "pretty", term.IsTerminal(int(os.Stderr.Fd())), "use human-readable console log output")

	root.AddCommand(refreshCmd(&cfgPath, &pretty))
	root.AddCommand(refreshAllCmd(&cfgPath, &pretty))
	root.AddCommand(syncRulesCmd(&cfgPath, &pretty))
	root.AddCommand(serveCmd(&cfgPath, &pretty))

	return root.ExecuteContext(ctx)
}

func refreshCmd(cfgPath *string, pretty *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [market-id]",
		Short: "Run one ingest -> score -> compute -> snapshot cycle for a market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(cmd.Context(), *cfgPath, *pretty)
			if err != nil {
				return err
			}
			defer closeFn()

			result := a.orchestrator.Refresh(cmd.Context(), args[0])
			a.finishProgress(firstError(result.Errors))
			return printJSON(result)
		},
	}
}

func refreshAllCmd(cfgPath *string, pretty *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-all",
		Short: "Run one refresh cycle across every active market",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(cmd.Context(), *cfgPath, *pretty)
			if err != nil {
				return err
			}
			defer closeFn()

			results := a.orchestrator.RefreshAll(cmd.Context())
			var errs []string
			for _, r := range results {
				errs = append(errs, r.Errors...)
			}
			a.finishProgress(firstError(errs))
			return printJSON(results)
		},
	}
}

func syncRulesCmd(cfgPath *string, pretty *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-rules",
		Short: "Reconcile active markets against registered post-source filter rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(cmd.Context(), *cfgPath, *pretty)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := a.rulesync.SyncRules(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func serveCmd(cfgPath *string, pretty *bool) *cobra.Command {
	var tickInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run refresh_all and sync_rules on a fixed tick until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(cmd.Context(), *cfgPath, *pretty)
			if err != nil {
				return err
			}
			defer closeFn()

			ticker := time.NewTicker(tickInterval)
			defer ticker.Stop()

			syncTicker := time.NewTicker(5 * time.Minute)
			defer syncTicker.Stop()

			a.log.Info().Dur("tick_interval", tickInterval).Msg("serve starting")
			for {
				select {
				case <-cmd.Context().Done():
					a.log.Info().Msg("serve stopping")
					return nil
				case <-ticker.C:
					tickResults := a.orchestrator.RefreshAll(cmd.Context())
					var errs []string
					for _, r := range tickResults {
						errs = append(errs, r.Errors...)
					}
					a.finishProgress(firstError(errs))
				case <-syncTicker.C:
					if _, err := a.rulesync.SyncRules(cmd.Context()); err != nil {
						a.log.Warn().Err(err).Msg("sync_rules failed")
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 60*time.Second, "delay between refresh_all passes")
	return cmd
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
