package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trade-journal/internal/broker"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

func newSyncCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [broker]",
		Short: "Sync trades from configured brokers",
		Long: `Fetch new executions from broker APIs, ingest them into the ledger, and
reconcile positions. Safe to run repeatedly; already seen trades are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}
			userID := app.Config.Journal.UserID
			if userID == "" {
				return fmt.Errorf("journal.user_id is not configured")
			}

			var brokers []models.Broker
			if len(args) == 1 {
				brokers = []models.Broker{models.Broker(args[0])}
			} else {
				for _, name := range app.Config.Journal.SyncBrokers {
					brokers = append(brokers, models.Broker(name))
				}
			}
			if len(brokers) == 0 {
				brokers = app.Registry.Brokers()
			}
			if len(brokers) == 0 {
				output.Warning("No brokers configured. Add credentials and journal.sync_brokers to the config.")
				return nil
			}

			if !output.IsJSON() {
				output.Info("Syncing %d broker(s)...", len(brokers))
			}

			pipeline := app.newPipeline()
			defer pipeline.Close()

			results, err := pipeline.SyncAll(cmd.Context(), userID, brokers)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			color.Cyan("🔄 Sync Results")
			table := NewTable(output, "Broker", "Fetched", "Created", "Duplicates", "Reconciled", "Failed")
			for _, r := range results {
				table.AddRow(
					string(r.Broker),
					fmt.Sprintf("%d", r.Fetched),
					fmt.Sprintf("%d", r.Created),
					fmt.Sprintf("%d", r.Duplicates),
					fmt.Sprintf("%d", r.Reconciled),
					fmt.Sprintf("%d", r.Failed),
				)
			}
			table.Render()
			return nil
		},
	}
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import trades from a CSV tradebook export",
		Long: `Import executions from a CSV file with columns order_id, symbol, exchange,
side, product, quantity, price, trade_time. Re-importing the same file is a
no-op; rows are deduplicated on order_id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}
			userID := app.Config.Journal.UserID
			if userID == "" {
				return fmt.Errorf("journal.user_id is not configured")
			}

			app.Registry.Register(broker.NewCSVAdapter(
				args[0],
				models.Exchange(app.Config.Journal.DefaultExchange),
				models.ProductType(app.Config.Journal.DefaultProduct),
			))

			pipeline := app.newPipeline()
			defer pipeline.Close()

			result, err := pipeline.SyncBroker(cmd.Context(), userID, models.BrokerCSV)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Success("✓ Imported %d trades (%d new, %d duplicates, %d failed)",
				result.Fetched, result.Created, result.Duplicates, result.Failed)
			return nil
		},
	}
	return cmd
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show current positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}

			positions, err := app.Store.GetPositions(cmd.Context(), app.Config.Journal.UserID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(positions)
			}

			if len(positions) == 0 {
				output.Dim("No positions.")
				return nil
			}

			color.Cyan("📒 Positions")
			table := NewTable(output, "Symbol", "Exchange", "Qty", "Avg Buy", "Cost", "Updated")
			for _, p := range positions {
				table.AddRow(
					p.Symbol,
					string(p.Exchange),
					FormatQuantity(p.Quantity),
					FormatIndianCurrency(p.AvgBuyPrice),
					FormatIndianCurrency(p.TotalCost),
					FormatDate(p.LastUpdated),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newRecomputeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild positions and PnL from the full trade history",
		Long: `Discard all position aggregates and replay every trade in execution order.
Use after correcting bad data or importing history out of order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}
			userID := app.Config.Journal.UserID

			if err := app.Engine.RecomputeAll(cmd.Context(), userID); err != nil {
				return err
			}

			positions, err := app.Store.GetPositions(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(positions)
			}

			output.Success("✓ Recomputed %d positions from trade history", len(positions))
			return nil
		},
	}
}

func newTradesCmd(app *App) *cobra.Command {
	var symbol, brokerName, patternID string
	var limit, days int

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List trades in the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}

			filter := store.TradeFilter{
				UserID:    app.Config.Journal.UserID,
				Symbol:    symbol,
				Broker:    models.Broker(brokerName),
				PatternID: patternID,
				Limit:     limit,
			}
			if days > 0 {
				filter.StartDate = time.Now().AddDate(0, 0, -days)
			}

			trades, err := app.Store.GetTrades(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}

			if len(trades) == 0 {
				output.Dim("No trades.")
				return nil
			}

			color.Cyan("📘 Trades")
			table := NewTable(output, "Time", "Symbol", "Side", "Qty", "Price", "PnL", "Pattern", "Broker")
			for _, t := range trades {
				pnl := "-"
				if t.PnL != nil {
					pnl = output.FormatPnL(*t.PnL)
				}
				pat := "-"
				if t.PatternID != nil {
					pat = *t.PatternID
				}
				price := "-"
				if p := t.Price(); p != nil {
					price = FormatPrice(*p)
				}
				table.AddRow(
					FormatDateTime(t.TradeTime()),
					t.Symbol,
					string(t.Type),
					FormatQuantity(t.Quantity),
					price,
					pnl,
					pat,
					string(t.Broker),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().StringVar(&brokerName, "broker", "", "filter by broker")
	cmd.Flags().StringVar(&patternID, "pattern", "", "filter by pattern label")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&days, "days", 0, "only trades from the last N days")

	return cmd
}
