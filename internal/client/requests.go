package client

import (
	"context"

	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

func call[T protocol.Response](ctx context.Context, c *Conn, req protocol.Request) (T, error) {
	var zero T
	resp, err := c.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	return resp.(T), nil
}

// PathCopy asks the daemon to copy the contents of source into target.
func (c *Conn) PathCopy(ctx context.Context, source, target string) (protocol.PathCopyResponse, error) {
	return call[protocol.PathCopyResponse](ctx, c, protocol.PathCopyRequest{
		Source: protocol.String(source),
		Target: protocol.String(target),
	})
}

// PathChmod asks the daemon to set the permission bits of path.
func (c *Conn) PathChmod(ctx context.Context, path string, mode uint32) (protocol.PathChmodResponse, error) {
	return call[protocol.PathChmodResponse](ctx, c, protocol.PathChmodRequest{Path: protocol.String(path), Mode: mode})
}

// PathGetDirectorySize asks the daemon for the size of the tree at path,
// skipping the named top-level entries.
func (c *Conn) PathGetDirectorySize(ctx context.Context, path string, exclusions []string) (protocol.PathGetDirectorySizeResponse, error) {
	return call[protocol.PathGetDirectorySizeResponse](ctx, c, protocol.PathGetDirectorySizeRequest{
		Path:       protocol.String(path),
		Exclusions: exclusions,
	})
}

// GetVersion returns the daemon's version string.
func (c *Conn) GetVersion(ctx context.Context) (string, error) {
	resp, err := call[protocol.MbGetVersionResponse](ctx, c, protocol.MbGetVersionRequest{})
	if err != nil {
		return "", err
	}
	return resp.Version, nil
}

// FileOpen opens path on the daemon side. The returned id is valid on this
// connection only, until FileClose or until the connection ends.
func (c *Conn) FileOpen(ctx context.Context, path string, flags []protocol.OpenFlag, perms uint32) (protocol.FileOpenResponse, error) {
	return call[protocol.FileOpenResponse](ctx, c, protocol.FileOpenRequest{
		Path:  protocol.String(path),
		Flags: flags,
		Perms: perms,
	})
}

func (c *Conn) FileClose(ctx context.Context, id int32) (protocol.FileCloseResponse, error) {
	return call[protocol.FileCloseResponse](ctx, c, protocol.FileCloseRequest{ID: id})
}

// FileRead reads up to count bytes. The daemon caps large reads, so
// callers loop until an empty read.
func (c *Conn) FileRead(ctx context.Context, id int32, count uint64) (protocol.FileReadResponse, error) {
	return call[protocol.FileReadResponse](ctx, c, protocol.FileReadRequest{ID: id, Count: count})
}

func (c *Conn) FileWrite(ctx context.Context, id int32, data []byte) (protocol.FileWriteResponse, error) {
	if data == nil {
		data = []byte{}
	}
	return call[protocol.FileWriteResponse](ctx, c, protocol.FileWriteRequest{ID: id, Data: data})
}

func (c *Conn) FileSeek(ctx context.Context, id int32, offset int64, whence protocol.Whence) (protocol.FileSeekResponse, error) {
	return call[protocol.FileSeekResponse](ctx, c, protocol.FileSeekRequest{ID: id, Offset: offset, Whence: whence})
}

func (c *Conn) FileStat(ctx context.Context, id int32) (protocol.FileStatResponse, error) {
	return call[protocol.FileStatResponse](ctx, c, protocol.FileStatRequest{ID: id})
}

func (c *Conn) FileChmod(ctx context.Context, id int32, mode uint32) (protocol.FileChmodResponse, error) {
	return call[protocol.FileChmodResponse](ctx, c, protocol.FileChmodRequest{ID: id, Mode: mode})
}
