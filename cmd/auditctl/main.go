// Program auditctl is a read-only inspection tool over the audit
// database (spec §6's signals/orders/fills/metrics_daily tables),
// grounded on NimbleMarkets-dbn-go's cmd/dbn-go-hist cobra-subcommand
// layout — one subcommand per read query, no mutation path.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/example/sigpipe/internal/audit"
	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "auditctl",
		Short: "Inspect the pipeline's audit database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "audit.db", "path to the audit sqlite database")

	root.AddCommand(signalsCmd(), ordersCmd(), metricsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*audit.Store, error) {
	return audit.Open(dbPath)
}

func signalsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List the most recent signal rows (emitted and suppressed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.RecentSignals(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s  %-6s  %-10s  tech=%.3f  sent=%.3f  score=%.3f  %-12s  horizon=%dm  override=%v\n",
					r.TS.Format("2006-01-02T15:04:05"), r.Ticker, r.Regime, r.Tech, r.Sentiment, r.Score, r.ReasonOrEmit, r.HorizonMin, r.Override)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows to print")
	return cmd
}

func ordersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List the most recent order rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.RecentOrders(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s  %-6s  %-4s  qty=%.4f  entry=%.2f  stop=%.2f  target=%.2f  %-10s  %s\n",
					r.TS.Format("2006-01-02T15:04:05"), r.Ticker, r.Side, r.Qty, r.Entry, r.Stop, r.Target, r.Status, r.IdemKey)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows to print")
	return cmd
}

func metricsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "List the most recent daily metrics rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.RecentDailyMetrics(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s  trades=%-4d winrate=%.3f  pnl=%.2f  drawdown=%.3f  llm_calls=%d\n",
					r.Date, r.Trades, r.WinRate, r.PnL, r.Drawdown, r.LLMCalls)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "max rows to print")
	return cmd
}
