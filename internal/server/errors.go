package server

import "errors"

var (
	// ErrPeerGone reports that the remote side vanished: the socket closed,
	// a read/write failed, or an incoming frame failed verification.
	ErrPeerGone = errors.New("peer gone")

	// ErrCancelled reports that a blocking receive was interrupted by its
	// context (shutdown, match termination, or a turn clock).
	ErrCancelled = errors.New("cancelled")

	// ErrNameInUse reports a USERNAME claim for a name bound to a live session.
	ErrNameInUse = errors.New("name in use")
)
