package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danwrong/yotohero/internal/cache"
	"github.com/danwrong/yotohero/internal/config"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local transcode cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func fileCache(ctx *commandContext) (*cache.FileCache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != config.CacheBackendFile {
		return nil, fmt.Errorf("cache.backend is %q; only the file cache can be managed from the CLI", cfg.Cache.Backend)
	}
	return cache.NewFileCache(cfg.Cache.Dir)
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached transcodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			fc, err := fileCache(ctx)
			if err != nil {
				return err
			}
			entries, err := fc.List()
			if err != nil {
				return err
			}
			if format != outputText {
				return writeStructured(cmd, format, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No cached transcodes in %s\n", fc.Dir())
				return nil
			}
			const stampLayout = "2006-01-02 15:04"
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					shorten(e.StoryTextHash, 12),
					shorten(e.TranscodeResult.ContentHash, 12),
					formatSeconds(e.TranscodeResult.Duration),
					humanBytes(e.TranscodeResult.FileSizeBytes),
					e.CreatedAt.Local().Format(stampLayout),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Story", "Content", "Duration", "Size", "Cached"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached transcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := fileCache(ctx)
			if err != nil {
				return err
			}
			removed, err := fc.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached transcodes\n", removed)
			return nil
		},
	}
}
