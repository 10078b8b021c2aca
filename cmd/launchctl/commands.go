// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"go.uber.org/zap"
)

const timeLayout = time.RFC3339

var errNonPositiveAge = errors.New("--older-than must be positive")

// opener returns the store a command operates on.
type opener func(ctx context.Context, file string, logger *zap.Logger) (store.S, error)

type cli struct {
	open    opener
	file    string
	verbose bool
	now     func() time.Time
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open, now: time.Now}

	root := &cobra.Command{
		Use:           "launchctl",
		Short:         "Inspect and maintain the launchcache store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.file, "config", "c", applicationName+".yaml", "the launchcache configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log store operations to stderr")

	report := &cobra.Command{
		Use:   "report",
		Short: "Print cache metadata, the record count and the earliest launches",
		Args:  cobra.NoArgs,
		RunE:  c.withStore(c.report),
	}
	report.Flags().IntP("earliest", "n", 5, "how many of the earliest launches to print")

	clearMeta := &cobra.Command{
		Use:   "clear-meta [key]",
		Short: "Clear one metadata row, or every row when no key is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.withStore(c.clearMeta),
	}

	clearAll := &cobra.Command{
		Use:   "clear-all",
		Short: "Delete every launch and every metadata row",
		Args:  cobra.NoArgs,
		RunE:  c.withStore(c.clearAll),
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete launches first written longer ago than --older-than",
		Args:  cobra.NoArgs,
		RunE:  c.withStore(c.purge),
	}
	purge.Flags().Duration("older-than", 30*24*time.Hour, "minimum age of the launches to delete")

	root.AddCommand(report, clearMeta, clearAll, purge)
	return root
}

func (c *cli) logger() *zap.Logger {
	if !c.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// withStore opens the store for the duration of a single command.
func (c *cli) withStore(run func(*cobra.Command, []string, store.S) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := c.open(cmd.Context(), c.file, c.logger())
		if err != nil {
			return err
		}
		defer s.Close()
		return run(cmd, args, s)
	}
}

func (c *cli) report(cmd *cobra.Command, _ []string, s store.S) error {
	ctx := cmd.Context()
	earliest, _ := cmd.Flags().GetInt("earliest")
	if earliest < 0 {
		return fmt.Errorf("--earliest must not be negative")
	}

	metadata, err := s.List(ctx)
	if err != nil {
		return err
	}
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	launches, err := s.ListOrdered(ctx, earliest)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeMetadata(out, metadata, c.now())
	fmt.Fprintf(out, "\nRecords: %d\n\n", count)
	writeLaunches(out, launches)
	return nil
}

func writeMetadata(w io.Writer, metadata []model.CacheMetadata, now time.Time) {
	if len(metadata) == 0 {
		fmt.Fprintln(w, "No cache metadata.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLAST UPDATED\tEXPIRES AT\tVALID")
	for _, m := range metadata {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.Key,
			m.LastUpdated.UTC().Format(timeLayout), m.ExpiresAt.UTC().Format(timeLayout), m.ValidAt(now))
	}
	tw.Flush()
}

func writeLaunches(w io.Writer, launches []model.Launch) {
	if len(launches) == 0 {
		fmt.Fprintln(w, "No launches.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NET\tID\tNAME\tSTATUS")
	for _, l := range launches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Net.UTC().Format(timeLayout), l.ID, l.Name, l.Status.Abbrev)
	}
	tw.Flush()
}

func (c *cli) clearMeta(cmd *cobra.Command, args []string, s store.S) error {
	if len(args) == 0 {
		if err := s.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cleared all cache metadata")
		return nil
	}
	if err := s.Clear(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared cache metadata for %q\n", args[0])
	return nil
}

// clearAll invalidates every cache key before deleting launches so a
// concurrent reader never sees a valid key over an emptied table.
func (c *cli) clearAll(cmd *cobra.Command, _ []string, s store.S) error {
	if err := s.ClearAll(cmd.Context()); err != nil {
		return err
	}
	removed, err := s.PurgeAll(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d launches and all cache metadata\n", removed)
	return nil
}

func (c *cli) purge(cmd *cobra.Command, _ []string, s store.S) error {
	age, _ := cmd.Flags().GetDuration("older-than")
	if age <= 0 {
		return errNonPositiveAge
	}
	removed, err := s.PurgeOlderThan(cmd.Context(), age)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d launches older than %s\n", removed, age)
	return nil
}
