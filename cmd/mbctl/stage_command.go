package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/staging"
	"github.com/Anik1199/DualBootPatcher/internal/version"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	var check bool
	var appVersion string

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Extract the bundled payload for this version",
		Long: "Copies data-<version>.tar.xz from the assets directory, extracts it into the\n" +
			"files directory and removes leftovers of other versions. Safe to run\n" +
			"concurrently; only one caller extracts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if appVersion == "" {
				appVersion = version.Version
			}

			m := staging.New(staging.Options{
				CacheDir: cfg.CacheDir,
				FilesDir: cfg.FilesDir,
				Assets:   os.DirFS(cfg.AssetsDir),
				Version:  appVersion,
			}, ctx.logger(cmd))
			defer m.Close()

			out := cmd.OutOrStdout()
			if check {
				staged := m.Staged()
				if ctx.JSONMode() {
					if err := writeJSON(cmd, map[string]any{"token": m.Token(), "target": m.TargetDir(), "staged": staged}); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "%s: staged=%s\n", m.TargetDir(), yesNo(staged))
				}
				if !staged {
					return fmt.Errorf("payload %s is not staged", m.Token())
				}
				return nil
			}

			target, err := m.Ensure(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"token": m.Token(), "target": target, "staged": true})
			}
			fmt.Fprintf(out, "Payload %s staged at %s\n", m.Token(), target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether the payload is staged")
	cmd.Flags().StringVar(&appVersion, "app-version", "", "Stage the payload of this version instead of the built-in one")
	return cmd
}
