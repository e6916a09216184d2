package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// ErrNoReply is returned by GetReply when no record exists for the id.
var ErrNoReply = errors.New("eventstore: no saved reply for event")

// ProcessedStore tracks which mention ids the bot has finished handling.
// Entries are write-once and live for the life of the store; the poll
// loop re-fetches a sliding window of events every cycle and relies on
// this table to make redundant deliveries no-ops.
type ProcessedStore interface {
	IsProcessed(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, when time.Time) error
}

// ReplyStore persists one signed reply event per handled mention, keyed
// by the mention's id. A record must be durable before the reply goes to
// the network: the record's existence is what stops a crash between save
// and send from producing a second visible post.
type ReplyStore interface {
	HasReply(ctx context.Context, id string) (bool, error)
	SaveReply(ctx context.Context, id string, reply *nostr.Event) error
	GetReply(ctx context.Context, id string) (*nostr.Event, error)
}
