package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/client"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
	"github.com/Anik1199/DualBootPatcher/internal/version"
)

func newOperationCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCopyCommand(ctx),
		newChmodCommand(ctx),
		newDirSizeCommand(ctx),
	}
}

// reportResult prints the outcome of an operation and turns a failure
// into the command's error.
func reportResult(cmd *cobra.Command, ctx *commandContext, op string, res protocol.Result, extra map[string]any) error {
	f, failed := res.Failure()
	if ctx.JSONMode() {
		payload := map[string]any{"operation": op, "success": !failed}
		if failed {
			payload["error"] = f.Message()
		}
		for k, v := range extra {
			payload[k] = v
		}
		if err := writeJSON(cmd, payload); err != nil {
			return err
		}
	}
	if failed {
		return f.Err()
	}
	return nil
}

func newCopyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "copy SOURCE TARGET",
		Short: "Copy file contents as root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				resp, err := conn.PathCopy(c, args[0], args[1])
				if err != nil {
					return err
				}
				if err := reportResult(cmd, ctx, "copy", resp, nil); err != nil {
					return err
				}
				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

func newChmodCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chmod MODE PATH",
		Short: "Change permission bits as root (octal MODE, no setuid/setgid/sticky)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				resp, err := conn.PathChmod(c, args[1], mode)
				if err != nil {
					return err
				}
				if err := reportResult(cmd, ctx, "chmod", resp, map[string]any{"mode": fmt.Sprintf("%04o", mode)}); err != nil {
					return err
				}
				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.OutOrStdout(), "Set mode of %s to %04o\n", args[1], mode)
				}
				return nil
			})
		},
	}
}

func parseMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: must be octal", s)
	}
	return uint32(mode), nil
}

func newDirSizeCommand(ctx *commandContext) *cobra.Command {
	var exclusions []string

	cmd := &cobra.Command{
		Use:   "dirsize PATH",
		Short: "Measure a directory tree as root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				resp, err := conn.PathGetDirectorySize(c, args[0], exclusions)
				if err != nil {
					return err
				}
				if err := reportResult(cmd, ctx, "dirsize", resp, map[string]any{"path": args[0], "size": resp.Size}); err != nil {
					return err
				}
				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", resp.Size, args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&exclusions, "exclude", "x", nil, "Top-level entry names to skip (repeatable)")
	return cmd
}

func newVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			daemonVersion := "unavailable"
			if socket := ctx.socketPath(); !client.Available(socket) {
				ctx.logger(cmd).Debug("daemon socket not accepting connections", "socket", socket)
			} else if err := ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				v, err := conn.GetVersion(c)
				if err == nil {
					daemonVersion = v
				}
				return err
			}); err != nil {
				ctx.logger(cmd).Warn("daemon version unavailable", "error", err)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"client": version.Version,
					"commit": version.Commit,
					"daemon": daemonVersion,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Info("mbctl"))
			fmt.Fprintf(out, "mbtoold %s\n", daemonVersion)
			return nil
		},
	}
}
