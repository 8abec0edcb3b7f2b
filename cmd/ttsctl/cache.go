package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the audio cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache location and size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Backend:\t%s\n", stats.Backend)
		fmt.Fprintf(w, "Index capacity:\t%s entries\n", humanize.Comma(int64(stats.Capacity)))
		if stats.Dir != "" {
			fmt.Fprintf(w, "Directory:\t%s\n", stats.Dir)
			fmt.Fprintf(w, "Compression:\t%t\n", stats.Compression)
			fmt.Fprintf(w, "Files:\t%s\n", humanize.Comma(int64(stats.DiskFiles)))
			fmt.Fprintf(w, "Size on disk:\t%s\n", humanize.Bytes(uint64(stats.DiskBytes)))
		} else {
			fmt.Fprintf(w, "Persistent tier:\tnone (audio is not retained)\n")
		}
		return w.Flush()
	},
}

var clearYes bool

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached audio file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}
		if !clearYes && stats.Dir != "" {
			return fmt.Errorf("refusing to delete %s of audio in %s without --yes",
				humanize.Bytes(uint64(stats.DiskBytes)), stats.Dir)
		}

		removed, err := store.Clear()
		if errors.Is(err, cache.ErrNoDiskTier) {
			fmt.Fprintln(cmd.OutOrStdout(), "Memory-only cache, nothing to clear")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to clear cache after removing %d files: %w", removed, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s files (%s)\n",
			humanize.Comma(int64(removed)), humanize.Bytes(uint64(stats.DiskBytes)))
		return nil
	},
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect <key>",
	Short: "Show the metadata of a cached entry",
	Long:  "Inspect looks a cache key up (as printed by synthesize or sent in X-Cache-Key) without reading its audio.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		key := args[0]
		// Has promotes a disk-only entry so Peek can report it
		if !store.Has(key) {
			return fmt.Errorf("no cached entry for %s", key)
		}
		md, ok := store.Peek(key)
		if !ok {
			return fmt.Errorf("no cached entry for %s", key)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Key:\t%s\n", md.Key)
		fmt.Fprintf(w, "Type:\t%s (.%s)\n", md.MimeType, md.Extension)
		fmt.Fprintf(w, "Size:\t%s\n", humanize.Bytes(uint64(md.Size)))
		fmt.Fprintf(w, "Created:\t%s (%s)\n", md.CreatedAt.Format(time.RFC3339), humanize.Time(md.CreatedAt))
		return w.Flush()
	},
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm deletion")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheInspectCmd)
}
