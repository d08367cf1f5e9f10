// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// costsReport is the --json payload of costs.
type costsReport struct {
	Trends   *telemetry.CostTrends    `json:"trends"`
	Sessions []*telemetry.SessionCost `json:"sessions"`
	Stored   int                      `json:"stored_sessions"`
	Pruned   int                      `json:"pruned,omitempty"`
}

func newCostsCommand(a *app) *cobra.Command {
	var (
		days  int
		prune int
		chart bool
	)

	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show recorded usage and cost",
		Example: `  rigrun-answer costs --days 30
  rigrun-answer costs --days 14 --chart
  rigrun-answer costs --prune 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return NewUsageError("costs", "--days must be at least 1")
			}
			tracker, err := telemetry.NewCostTracker(a.cfg.Telemetry.Dir)
			if err != nil {
				return fmt.Errorf("opening cost storage: %w", err)
			}
			storage := tracker.Storage()
			out := cmd.OutOrStdout()
			var report costsReport

			if prune > 0 {
				removed, err := storage.DeleteBefore(time.Now().AddDate(0, 0, -prune))
				if err != nil {
					return fmt.Errorf("pruning cost storage: %w", err)
				}
				report.Pruned = removed
				if !a.jsonOutput {
					fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("Removed %d session(s) older than %d days.", removed, prune)))
				}
			}

			report.Trends = tracker.GetTrends(days)
			report.Sessions = tracker.GetHistory(time.Now().AddDate(0, 0, -days), time.Now())
			report.Stored, _ = storage.Count()

			if a.jsonOutput {
				return a.printJSON(out, "costs", report)
			}
			printTrends(out, report.Trends)
			if chart {
				if graph := dailyTokenChart(report.Trends, time.Now()); graph != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, graph)
				}
			}
			size, _ := storage.Size()
			fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%d stored session(s), %d bytes in %s",
				report.Stored, size, storage.Dir())))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "days to summarize")
	cmd.Flags().IntVar(&prune, "prune", 0, "first delete sessions older than this many days")
	cmd.Flags().BoolVar(&chart, "chart", false, "plot daily token usage")
	return cmd
}

// printTrends prints daily and per-model totals.
func printTrends(w io.Writer, trends *telemetry.CostTrends) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Usage over the last %d days", trends.Days)))
	fmt.Fprintln(w, LabelStyle.Render("Requests")+ValueStyle.Render(fmt.Sprint(trends.Requests)))
	fmt.Fprintln(w, LabelStyle.Render("Tokens")+ValueStyle.Render(fmt.Sprint(trends.TotalTokens)))
	fmt.Fprintln(w, LabelStyle.Render("Cost")+ValueStyle.Render(fmt.Sprintf("$%.4f", trends.TotalCost)))

	if len(trends.DailyBreakdown) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("By day"))
		for _, d := range trends.DailyBreakdown {
			fmt.Fprintf(w, "  %s %6d req %9d tok  $%.4f\n",
				d.Date.Format("2006-01-02"), d.Requests, d.Tokens, d.Cost)
		}
	}

	if len(trends.ModelBreakdown) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("By model"))
		models := make([]string, 0, len(trends.ModelBreakdown))
		for m := range trends.ModelBreakdown {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Fprintf(w, "  %s $%.4f\n", util.PadRight(m, 48), trends.ModelBreakdown[m])
		}
	}
}

// printSession prints the totals of one session.
func printSession(w io.Writer, s *telemetry.SessionCost) {
	if s == nil {
		fmt.Fprintln(w, DimStyle.Render("Cost tracking is disabled."))
		return
	}
	fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("session: %d request(s), %d failed, %d tokens, $%.4f",
		s.Requests, s.Failures, s.TotalTokens, s.TotalCost)))
}

// dailyTokenChart plots tokens per day for the trend window ending at now.
// Days without usage plot as zero. Returns "" when nothing was recorded.
func dailyTokenChart(trends *telemetry.CostTrends, now time.Time) string {
	if trends == nil || trends.Requests == 0 || trends.Days < 2 {
		return ""
	}

	byDay := make(map[string]int, len(trends.DailyBreakdown))
	for _, d := range trends.DailyBreakdown {
		byDay[d.Date.Format("2006-01-02")] = d.Tokens
	}
	series := make([]float64, trends.Days)
	for i := range series {
		day := now.AddDate(0, 0, i-trends.Days+1)
		series[i] = float64(byDay[day.Format("2006-01-02")])
	}

	return asciigraph.Plot(series,
		asciigraph.Height(8),
		asciigraph.Width(min(trends.Days*4, 60)),
		asciigraph.Precision(0),
		asciigraph.Caption(fmt.Sprintf("tokens per day, last %d days", trends.Days)),
	)
}
