package endpoint

import (
	"context"
	"net/url"
	"time"
)

// OperationType identifies a REST operation for logging and metrics.
type OperationType int

const (
	OpUnknown OperationType = iota
	OpAddPushNotificationsOnChannels
)

func (o OperationType) String() string {
	switch o {
	case OpAddPushNotificationsOnChannels:
		return "add_push_notifications_on_channels"
	default:
		return "unknown"
	}
}

// Request is an inert description of a single REST call. The transport turns
// it into an HTTP request; nothing here touches the network.
type Request struct {
	Method         string
	Path           string
	Query          url.Values
	Body           []byte
	AuthRequired   bool
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// Response is the raw result handed back by the transport.
type Response struct {
	StatusCode int
	Body       []byte
}

// Operation is implemented by every endpoint builder the dispatcher can run.
type Operation[T any] interface {
	Name() string
	OperationType() OperationType
	Validate() error
	BuildRequest() (*Request, error)
	ParseResponse(payload []byte) (T, error)
}

// Executor sends a Request over the wire.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}
