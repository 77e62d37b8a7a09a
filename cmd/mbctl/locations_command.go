package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/location"
	"github.com/Anik1199/DualBootPatcher/internal/slot"
)

func newLocationsCommand(ctx *commandContext) *cobra.Command {
	var fixedOnly bool

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List install locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog(cmd)
			if err != nil {
				return err
			}

			var locs []location.InstallLocation
			if fixedOnly {
				locs = catalog.Fixed()
			} else {
				var warn error
				locs, warn = catalog.All()
				if warn != nil {
					// Named locations are optional; show what is known.
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warn)
				}
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, locs)
			}
			rows := make([][]string, 0, len(locs))
			for _, loc := range locs {
				rows = append(rows, []string{loc.ID, loc.Name, loc.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Description"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fixedOnly, "fixed", false, "Only list the built-in locations")
	return cmd
}

func (c *commandContext) catalog(cmd *cobra.Command) (*location.Catalog, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	strs, err := location.NewStrings(cfg.Locale)
	if err != nil {
		return nil, err
	}
	return location.NewCatalog(strs, cfg.ExternalStorage, c.logger(cmd)), nil
}

type slotInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Suffix string `json:"suffix,omitempty"`
	Fixed  bool   `json:"fixed"`
}

func newSlotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "slot ID...",
		Short:       "Classify install location ids",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]slotInfo, 0, len(args))
			for _, id := range args {
				kind := slot.Classify(id)
				suffix, _ := slot.ExtractSuffix(id, kind)
				infos = append(infos, slotInfo{ID: id, Kind: kind.String(), Suffix: suffix, Fixed: slot.IsFixed(id)})
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.ID, info.Kind, info.Suffix, yesNo(info.Fixed)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Namespace", "Suffix", "Fixed"}, rows, nil))
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
