package adapter

import (
	"fmt"

	"github.com/sockline/sockline.go/adapter/transport"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	// ErrAdapterDestroyed settles any call issued after teardown began, or
	// still unsettled when it completes.
	ErrAdapterDestroyed = Err("adapter is destroyed")
	ErrAlreadyStarted   = Err("adapter already started")
)

// RemoteError reports a call the server answered with a non-2xx status, or
// with no status metadata at all.
type RemoteError struct {
	Status  int
	Meta    *transport.ResponseMeta
	Payload interface{}
}

func (e *RemoteError) Error() string {
	if e.Meta == nil {
		return fmt.Sprintf("remote error without status: %v", e.Payload)
	}
	return fmt.Sprintf("remote error: status %d", e.Status)
}
