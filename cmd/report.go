package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/xenlix/visibility-engine/internal/report"
)

var (
	reportDays    int
	reportBrandID string
	reportEngine  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate visibility reports",
	Long:  "Commands for summarizing brand visibility and ranking cited sources.",
}

// -- report summary --

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the windowed visibility summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var engines []string
		if reportEngine != "" {
			engines = []string{reportEngine}
		}

		summary, err := report.New(st).Summarize(ctx, reportBrandID, reportDays, engines)
		if err != nil {
			return eris.Wrap(err, "report summary")
		}

		formatSummary(os.Stdout, summary)
		return nil
	},
}

// -- report sources --

var reportSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Rank the most cited sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		minCitations, _ := cmd.Flags().GetInt("min-citations")

		sources, err := report.New(st).TopSources(ctx, reportDays, minCitations, limit, reportBrandID, reportEngine)
		if err != nil {
			return eris.Wrap(err, "report sources")
		}

		formatSources(os.Stdout, sources)
		return nil
	},
}

// formatSummary writes the visibility summary to w.
func formatSummary(out io.Writer, s *report.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Visibility index:\t%.1f (%s)\n", s.Index, s.Trend)
	_, _ = fmt.Fprintf(w, "Window:\t%d days\n", s.WindowDays)
	_, _ = fmt.Fprintf(w, "Coverage:\t%.1f%% (%d of %d active prompts)\n",
		s.Coverage.Percentage, s.Coverage.PromptsWithAnswers, s.Coverage.ActivePrompts)
	if s.Competitive.DominantBrand != "" {
		_, _ = fmt.Fprintf(w, "Dominant brand:\t%s (%.1f)\n",
			s.Competitive.DominantBrand, s.Competitive.DominantIndex)
	}
	_ = w.Flush()

	if len(s.Brands) == 0 {
		return
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BRAND\tINDEX\tTREND\tANSWERS\tMENTIONS")
	_, _ = fmt.Fprintln(w, "-----\t-----\t-----\t-------\t--------")
	for _, b := range s.Brands {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%s\t%d\t%d\n",
			b.BrandName, b.Index, b.Trend, b.Answers, b.Mentions)
	}
	_ = w.Flush()
}

// formatSources writes the top-source ranking to w.
func formatSources(out io.Writer, s *report.Sources) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Citations:\t%d (%d urls, %d domains, %d days)\n",
		s.Summary.TotalCitations, s.Summary.DistinctURLs, s.Summary.DistinctDomains, s.Summary.WindowDays)
	_ = w.Flush()

	if len(s.TopDomains) == 0 {
		fmt.Fprintln(os.Stderr, "No citations in window.")
		return
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tCITATIONS\tAVG_RANK\tENGINES\tAUTHORITY")
	_, _ = fmt.Fprintln(w, "------\t---------\t--------\t-------\t---------")
	for _, d := range s.TopDomains {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.1f\t%d\t%.2f\n",
			d.Domain, d.Citations, d.AvgRank, d.DistinctEngines, d.Authority)
	}
	_ = w.Flush()
}

func init() {
	reportCmd.PersistentFlags().IntVar(&reportDays, "days", 30, "report window in days (1-90)")
	reportCmd.PersistentFlags().StringVar(&reportBrandID, "brand-id", "", "limit to one brand")
	reportCmd.PersistentFlags().StringVar(&reportEngine, "engine", "", "limit to one engine")

	reportSourcesCmd.Flags().Int("limit", 10, "max sources to display (1-50)")
	reportSourcesCmd.Flags().Int("min-citations", 1, "drop sources cited fewer times")

	reportCmd.AddCommand(reportSummaryCmd)
	reportCmd.AddCommand(reportSourcesCmd)
	rootCmd.AddCommand(reportCmd)
}
