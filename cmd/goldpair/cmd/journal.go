package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/journal"
	"github.com/rustyeddy/goldpair/notify"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and display records from the SQLite audit journal.

Subcommands:
  trade    - Show one closed leg by ticket
  today    - List legs closed today
  day      - List legs closed on a specific day
  events   - List lifecycle events
  summary  - Win/loss summary over a day range

Examples:
  goldpair journal trade 42
  goldpair journal day 2026-03-02
  goldpair journal events --pair 1f0c... --limit 20
  goldpair journal summary --days 7`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <ticket>",
	Short: "Show one closed leg",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List legs closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List legs closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List lifecycle events",
	Args:  cobra.NoArgs,
	RunE:  runJournalEvents,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize closed legs",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

var (
	journalDBPath string
	eventsPair    string
	eventsKind    string
	eventsLimit   int
	summaryDays   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalEventsCmd)
	journalCmd.AddCommand(journalSummaryCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./goldpair.sqlite", "path to SQLite journal DB")
	journalEventsCmd.Flags().StringVar(&eventsPair, "pair", "", "only events for this pair id")
	journalEventsCmd.Flags().StringVar(&eventsKind, "kind", "", "only events of this kind, e.g. SL_HIT")
	journalEventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to print (0 for all)")
	journalSummaryCmd.Flags().IntVar(&summaryDays, "days", 1, "number of days back from now")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	start := time.Now().UTC().Truncate(24 * time.Hour)
	return listDay(cmd.OutOrStdout(), start)
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", args[0], err)
	}
	return listDay(cmd.OutOrStdout(), day)
}

func listDay(out io.Writer, start time.Time) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.ListTradesClosedBetween(start, start.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Fprintf(out, "No legs closed on %s\n", start.Format("2006-01-02"))
		return nil
	}
	fmt.Fprint(out, journal.FormatTradesOrg(trades))
	return nil
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	evs, err := j.ListEvents(journal.EventFilter{
		PairID: eventsPair,
		Kind:   events.Kind(eventsKind),
		Limit:  eventsLimit,
	})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, e := range evs {
		fmt.Fprintf(out, "%s  %-16s %-8s %s\n", e.Time.Format(time.RFC3339), e.Kind, shortPair(e.PairID), notify.Format(e))
	}
	return nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	if summaryDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	end := time.Now().UTC()
	start := end.Truncate(24*time.Hour).AddDate(0, 0, -(summaryDays - 1))
	s, err := j.Summarize(start, end)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Since %s\n", start.Format("2006-01-02"))
	fmt.Fprintf(out, "  Legs:          %d\n", s.Legs)
	fmt.Fprintf(out, "  Wins/Losses:   %d/%d\n", s.Wins, s.Losses)
	fmt.Fprintf(out, "  Points won:    %.2f\n", s.GrossPoints)
	fmt.Fprintf(out, "  Points lost:   %.2f\n", s.LossPoints)
	fmt.Fprintf(out, "  Profit factor: %.2f\n", s.ProfitFactor())
	return nil
}

func shortPair(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
