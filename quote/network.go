package quote

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// SendReceipt reports the per-relay outcome of publishing one event.
type SendReceipt struct {
	Succeeded []string
	Failed    []string
}

// EventNetwork is the slice of relay I/O the pipeline needs. The
// production implementation is relaypool.Pool; tests swap in a fake.
//
// An empty relays list means "use the implementation's default set".
type EventNetwork interface {
	// Fetch queries the given relays with the filter and returns the
	// merged, deduplicated results within the timeout.
	Fetch(ctx context.Context, filter nostr.Filter, timeout time.Duration, relays ...string) ([]*nostr.Event, error)

	// Send publishes a signed event to the given relays. It returns an
	// error only if no relay accepted the event.
	Send(ctx context.Context, evt *nostr.Event, relays ...string) (*SendReceipt, error)
}
