package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/insights"
	"trade-journal/internal/pattern"
	"trade-journal/internal/store"
)

func newStatsCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show trading performance statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}

			summary, err := app.Analytics.Summarize(cmd.Context(), app.Config.Journal.UserID, rangeForDays(days))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(summary)
			}

			renderSummary(output, summary)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "only trades from the last N days")
	return cmd
}

func renderSummary(output *Output, s *analytics.Summary) {
	color.Cyan("📊 Performance Summary")
	output.Printf("  Trades:     %d closed of %d total\n", s.Stats.ClosedTrades, s.Stats.TotalTrades)
	output.Printf("  Total PnL:  %s\n", output.FormatPnL(s.Stats.TotalPnL))
	output.Printf("  Avg PnL:    %s\n", output.FormatPnL(s.Stats.AvgPnL))
	output.Printf("  Win Rate:   %s (%d W / %d L)\n", output.FormatPercent(s.Stats.WinRate), s.Stats.WinCount, s.Stats.LossCount)
	output.Printf("  Avg Win:    %s   Avg Loss: %s\n", output.FormatPnL(s.Stats.AvgWin), output.FormatPnL(s.Stats.AvgLoss))
	output.Printf("  Best:       %s   Worst:    %s\n", output.FormatPnL(s.Stats.BestTrade), output.FormatPnL(s.Stats.WorstTrade))

	bestWin, worstLoss := analytics.Streaks(s.Daily)
	output.Printf("  Streaks:    %d winning days, %d losing days\n", bestWin, worstLoss)
	output.Printf("  Max DD:     %s\n", FormatIndianCurrency(analytics.MaxDrawdown(s.Daily)))
	output.Println()

	renderGroups(output, "By Symbol", s.BySymbol)
	renderGroups(output, "By Product", s.ByProduct)
	renderGroups(output, "By Pattern", s.ByPattern)
}

func renderGroups(output *Output, title string, groups []store.GroupStat) {
	if len(groups) == 0 {
		return
	}
	output.Bold(title)
	table := NewTable(output, "Key", "Trades", "Total PnL", "Avg PnL", "Win Rate")
	for _, g := range groups {
		table.AddRow(
			g.Key,
			fmt.Sprintf("%d", g.Trades),
			output.FormatPnL(g.TotalPnL),
			output.FormatPnL(g.AvgPnL),
			output.FormatPercent(g.WinRate),
		)
	}
	table.Render()
	output.Println()
}

func newClassifyCmd(app *App) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "classify <symbol>",
		Short: "Classify the current market regime for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}
			if app.Classifier == nil {
				return fmt.Errorf("pattern artifact not loaded; set classifier.artifact_path")
			}

			at := time.Now()
			if before != "" {
				parsed, err := time.Parse("2006-01-02", before)
				if err != nil {
					return fmt.Errorf("bad --before date: %w", err)
				}
				at = parsed
			}

			minObs := app.Config.Classifier.MinObservations
			candles, err := app.Store.GetRecentCandles(cmd.Context(), args[0], at, minObs+1)
			if err != nil {
				return err
			}

			features, err := pattern.BuildFeatures(candles, minObs)
			if err != nil {
				return err
			}

			result, err := app.Classifier.Classify(features)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    args[0],
					"patternId": result.PatternID,
					"distance":  result.Distance,
					"fallback":  result.Fallback,
				})
			}

			p := app.Classifier.Pattern(result.PatternID)
			color.Cyan("🔍 Market Regime - %s", args[0])
			output.Printf("  Pattern:  %s", result.PatternID)
			if p != nil {
				output.Printf(" (%s)", p.Name)
			}
			output.Println()
			output.Printf("  Distance: %.3f\n", result.Distance)
			if result.Fallback {
				output.Warning("  Matched by rule fallback; no centroid was close enough")
			}
			if p != nil {
				output.Dim("  %s", p.Description)
				for _, risk := range p.Risks {
					output.Printf("  ⚠ %s\n", risk)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "classify as of this date (YYYY-MM-DD)")
	return cmd
}

func newInsightsCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate an AI retrospective over recent trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store not initialized")
			}
			if app.LLMClient == nil {
				return fmt.Errorf("insights require an OpenAI API key in credentials")
			}

			summary, err := app.Analytics.Summarize(cmd.Context(), app.Config.Journal.UserID, rangeForDays(days))
			if err != nil {
				return err
			}
			if summary.Stats.ClosedTrades == 0 {
				output.Dim("No closed trades to review.")
				return nil
			}

			gen := insights.NewGenerator(app.LLMClient, app.Classifier)
			text, err := gen.Generate(cmd.Context(), summary)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"retrospective": text})
			}

			color.Cyan("🧠 Trading Retrospective")
			output.Println(text)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "review the last N days")
	return cmd
}

func rangeForDays(days int) store.DateRange {
	if days <= 0 {
		return store.DateRange{}
	}
	return store.DateRange{Start: time.Now().AddDate(0, 0, -days)}
}
