package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Anik1199/DualBootPatcher/internal/client"
	"github.com/Anik1199/DualBootPatcher/internal/fsops"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

// writeChunk keeps each FileWrite request well under the frame limit.
const writeChunk = 256 << 10

func newFileCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCatCommand(ctx),
		newWriteCommand(ctx),
	}
}

func failureErr(res protocol.Result) error {
	if f, failed := res.Failure(); failed {
		return f.Err()
	}
	return nil
}

func openHandle(c context.Context, conn *client.Conn, path string, flags []protocol.OpenFlag, perms uint32) (int32, error) {
	resp, err := conn.FileOpen(c, path, flags, perms)
	if err != nil {
		return 0, err
	}
	if err := failureErr(resp); err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	return resp.ID, nil
}

func closeHandle(c context.Context, conn *client.Conn, id int32) error {
	resp, err := conn.FileClose(c, id)
	if err != nil {
		return err
	}
	return failureErr(resp)
}

func newCatCommand(ctx *commandContext) *cobra.Command {
	var offset int64

	cmd := &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a file read as root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				id, err := openHandle(c, conn, args[0], []protocol.OpenFlag{protocol.OpenReadOnly}, 0)
				if err != nil {
					return err
				}

				if offset != 0 {
					resp, err := conn.FileSeek(c, id, offset, protocol.SeekSet)
					if err != nil {
						return err
					}
					if err := failureErr(resp); err != nil {
						return errors.Join(fmt.Errorf("seek %s: %w", args[0], err), closeHandle(c, conn, id))
					}
				}

				out := cmd.OutOrStdout()
				for {
					resp, err := conn.FileRead(c, id, fsops.MaxReadChunk)
					if err != nil {
						return err
					}
					if err := failureErr(resp); err != nil {
						return errors.Join(fmt.Errorf("read %s: %w", args[0], err), closeHandle(c, conn, id))
					}
					if len(resp.Data) == 0 {
						break
					}
					if _, err := out.Write(resp.Data); err != nil {
						return errors.Join(err, closeHandle(c, conn, id))
					}
				}
				return closeHandle(c, conn, id)
			})
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "Start reading at this byte offset")
	return cmd
}

func newWriteCommand(ctx *commandContext) *cobra.Command {
	var appendMode bool
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "write PATH",
		Short: "Write standard input to a file as root",
		Long: "Creates PATH if needed and writes standard input to it through a daemon\n" +
			"file handle. The file is truncated first unless --append is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode uint32
			if modeFlag != "" {
				m, err := parseMode(modeFlag)
				if err != nil {
					return err
				}
				mode = m
			}

			flags := []protocol.OpenFlag{protocol.OpenWriteOnly, protocol.OpenCreate, protocol.OpenTruncate}
			if appendMode {
				flags = []protocol.OpenFlag{protocol.OpenWriteOnly, protocol.OpenCreate, protocol.OpenAppend}
			}

			return ctx.withClient(cmd, func(c context.Context, conn *client.Conn) error {
				id, err := openHandle(c, conn, args[0], flags, 0o644)
				if err != nil {
					return err
				}
				path := args[0]

				written, err := copyToHandle(c, conn, id, cmd.InOrStdin())
				if err != nil {
					return errors.Join(fmt.Errorf("write %s: %w", path, err), closeHandle(c, conn, id))
				}
				if modeFlag != "" {
					resp, err := conn.FileChmod(c, id, mode)
					if err != nil {
						return err
					}
					if err := failureErr(resp); err != nil {
						return errors.Join(fmt.Errorf("chmod %s: %w", path, err), closeHandle(c, conn, id))
					}
				}
				st, err := conn.FileStat(c, id)
				if err != nil {
					return err
				}
				if err := failureErr(st); err != nil {
					return errors.Join(fmt.Errorf("stat %s: %w", path, err), closeHandle(c, conn, id))
				}
				if err := closeHandle(c, conn, id); err != nil {
					return fmt.Errorf("close %s: %w", path, err)
				}

				var size int64
				if st.Stat != nil {
					size = st.Stat.Size
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"operation": "write", "success": true, "path": path, "written": written, "size": size})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s (size %s)\n", humanBytes(written), path, humanBytes(uint64(size)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&appendMode, "append", false, "Append instead of truncating")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "Set the file's permission bits (octal) after writing")
	return cmd
}

// copyToHandle streams r into the open handle id and returns the number of
// bytes the daemon reported written.
func copyToHandle(c context.Context, conn *client.Conn, id int32, r io.Reader) (uint64, error) {
	buf := make([]byte, writeChunk)
	var total uint64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			resp, err := conn.FileWrite(c, id, buf[:n])
			if err != nil {
				return total, err
			}
			if err := failureErr(resp); err != nil {
				return total, err
			}
			total += resp.BytesWritten
			if resp.BytesWritten != uint64(n) {
				return total, fmt.Errorf("short write: %d of %d bytes", resp.BytesWritten, n)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
