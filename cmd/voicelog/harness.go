package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/voicetest"
)

func newHarnessCmd(a *app) *cobra.Command {
	var (
		casesPath string
		csvPath   string
		nowFlag   string
	)
	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Run the voice acceptance corpus in simulation mode",
		Long: `Map every numbered sentence in a corpus file with the heuristics only
and score each field against its "=> field: value" expectations.

Examples:
  voicelog harness --cases internal/voicetest/testdata/cases.md
  voicelog harness --cases cases.md --csv failures.csv --now 2025-03-10T14:30:00+05:30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if casesPath == "" {
				return errors.New("--cases is required")
			}
			var now time.Time
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("parsing --now: %w", err)
				}
				now = t
			}

			f, err := os.Open(casesPath)
			if err != nil {
				return err
			}
			defer f.Close()
			cases, err := voicetest.ParseCases(f)
			if err != nil {
				return err
			}

			resolver, err := a.resolver(now)
			if err != nil {
				return err
			}
			mapper := extract.NewMapper(resolver, extract.NewGuard(a.logger))
			results := voicetest.Run(cases, mapper, resolver.Now())

			if err := voicetest.Summarize(results).Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if csvPath == "" {
				return nil
			}
			out, err := os.Create(csvPath)
			if err != nil {
				return err
			}
			if err := voicetest.WriteFailuresCSV(out, results); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "", "corpus file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write failed cases to this CSV file")
	cmd.Flags().StringVar(&nowFlag, "now", "", "fixed current time (RFC 3339) for start-time expectations")
	return cmd
}
