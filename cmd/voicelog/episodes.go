package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
)

func newEpisodesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List, show or delete stored episodes",
	}

	var opts store.ListOpts
	list := &cobra.Command{
		Use:   "list",
		Short: "List episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			episodes, err := st.ListEpisodes(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("listing episodes: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(episodes) == 0 {
				fmt.Fprintln(out, "No episodes.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tCREATED\tSTART\tINTENSITY\tLOCATION")
			for _, ep := range episodes {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
					ep.ID, ep.UserID, ep.CreatedAt.Format(time.DateTime),
					orDash(ep.Payload.Format(extract.FieldStartTime)),
					orDash(ep.Payload.Format(extract.FieldIntensity)),
					orDash(ep.Payload.PainLocation))
			}
			return tw.Flush()
		},
	}
	list.Flags().Int64Var(&opts.UserID, "user", 0, "only this user's episodes")
	list.Flags().IntVarP(&opts.Limit, "limit", "n", store.DefaultListLimit, "max results")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many results")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print an episode as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ep, err := st.GetEpisode(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ep)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.DeleteEpisode(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted episode %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid episode id %q", s)
	}
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show row counts and database size",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			},
		},
		&cobra.Command{
			Use:   "vacuum",
			Short: "Reclaim unused database space",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				if err := st.Vacuum(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Vacuum complete.")
				return nil
			},
		},
	)
	return cmd
}
