package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/storage"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show free space where payloads and slots are stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			usages := storage.Collect(cmd.Context(), []storage.Target{
				{Label: "cache", Path: cfg.CacheDir},
				{Label: "files", Path: cfg.FilesDir},
				{Label: "external", Path: cfg.ExternalStorage},
			}, ctx.logger(cmd))

			if ctx.JSONMode() {
				return writeJSON(cmd, usages)
			}
			rows := make([][]string, 0, len(usages))
			for _, u := range usages {
				if u.Error != "" {
					rows = append(rows, []string{u.Label, u.Path, "-", "-", "-", u.Error})
					continue
				}
				note := ""
				if !u.Exists {
					note = "not created yet"
				}
				rows = append(rows, []string{
					u.Label,
					u.Path,
					humanBytes(u.Free),
					humanBytes(u.Total),
					fmt.Sprintf("%.1f%%", u.UsedPercent),
					note,
				})
			}
			headers := []string{"Area", "Path", "Free", "Size", "Used", "Note"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
