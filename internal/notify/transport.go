package notify

import (
	"context"
	"errors"
	"fmt"
)

// Transport opens channels to the delivery server.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one open bidirectional channel. Read blocks until a frame
// arrives; when the channel ends it returns an error, ideally a
// *CloseError carrying the reason.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type CloseReason int

const (
	// CloseTransport is a network failure: refused dial, reset, timeout.
	CloseTransport CloseReason = iota
	// CloseServer is a close handshake initiated by the server.
	CloseServer
	// CloseClient is a close the client asked for via Disconnect.
	CloseClient
)

func (r CloseReason) String() string {
	switch r {
	case CloseTransport:
		return "transport_error"
	case CloseServer:
		return "server_disconnect"
	case CloseClient:
		return "client_disconnect"
	default:
		return fmt.Sprintf("close_reason(%d)", int(r))
	}
}

type CloseError struct {
	Reason CloseReason
	Code   int
	Err    error
}

func (e *CloseError) Error() string {
	if e.Err != nil {
		return e.Reason.String() + ": " + e.Err.Error()
	}
	return e.Reason.String()
}

func (e *CloseError) Unwrap() error { return e.Err }

// ReasonOf extracts the close reason from a transport error. Errors that
// carry no reason are treated as transport failures.
func ReasonOf(err error) CloseReason {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return CloseTransport
}
