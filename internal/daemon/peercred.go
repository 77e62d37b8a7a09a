package daemon

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// errNoCredentials is returned for connections that cannot report peer
// credentials (anything other than a Unix socket).
var errNoCredentials = errors.New("peer credentials unavailable")

// Peer identifies the process on the other end of a connection.
type Peer struct {
	PID int32
	UID uint32
	GID uint32
}

// peerCredentials reads SO_PEERCRED from a Unix socket connection.
func peerCredentials(conn net.Conn) (Peer, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return Peer{}, errNoCredentials
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return Peer{}, fmt.Errorf("raw conn: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Peer{}, fmt.Errorf("control: %w", err)
	}
	if credErr != nil {
		return Peer{}, fmt.Errorf("getsockopt SO_PEERCRED: %w", credErr)
	}
	return Peer{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

// uidPolicy allows root and the listed UIDs.
func uidPolicy(allowed []uint32) func(Peer) bool {
	set := make(map[uint32]struct{}, len(allowed))
	for _, uid := range allowed {
		set[uid] = struct{}{}
	}
	return func(p Peer) bool {
		if p.UID == 0 {
			return true
		}
		_, ok := set[p.UID]
		return ok
	}
}
