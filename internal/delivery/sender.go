// Package delivery drives notification delivery: the channel sender
// contract, the HTTP gateway implementation, and the retry scheduler.
package delivery

import "context"

// Result classifies one delivery attempt.
type Result int

const (
	// ResultSuccess means the message was accepted by the channel.
	ResultSuccess Result = iota
	// ResultTransient means the attempt failed but may succeed later
	// (timeout, transport busy, gateway restarting).
	ResultTransient
	// ResultPermanent means retrying cannot help (invalid phone,
	// channel rejected the recipient).
	ResultPermanent
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultTransient:
		return "transient"
	case ResultPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Sender is the channel sender capability. The transport's own
// protocol (pairing, session keep-alive) is outside this contract;
// only the three-outcome result matters here.
type Sender interface {
	Send(ctx context.Context, phone, message string) (Result, error)
}
