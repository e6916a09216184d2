package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nbd-wtf/go-nostr"

	"github.com/felixzieger/quotebot/quote/relayset"
)

// ErrParentNotFound is returned when a mention replies to an event id
// that no reachable relay produced within the resolution timeout.
var ErrParentNotFound = errors.New("parent event not found on any relay")

// DefaultResolveTimeout bounds one parent lookup so an unreachable relay
// cannot stall the poll loop.
const DefaultResolveTimeout = 5 * time.Second

const (
	parentCacheSize = 512
	parentCacheTTL  = 5 * time.Minute
)

// Resolution describes the note a mention wants quoted: its content, its
// id, and whether the mention itself was the conversation root.
type Resolution struct {
	Content  string
	ParentID string
	Root     bool
}

// Resolver finds the note a mention is asking the bot to quote. Because
// the poll loop re-fetches a sliding window, the same mention arrives
// several times before it ages out; a short-lived cache keeps those
// repeats from re-hitting relays.
type Resolver struct {
	Network EventNetwork
	Timeout time.Duration

	cache *expirable.LRU[string, *nostr.Event]
}

func NewResolver(network EventNetwork, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{
		Network: network,
		Timeout: timeout,
		cache:   expirable.NewLRU[string, *nostr.Event](parentCacheSize, nil, parentCacheTTL),
	}
}

// ResolveParent resolves the note a mention quotes. A mention with no
// reply reference is its own root. A dangling reference (an "e" tag with
// an empty id) yields (nil, nil) and the caller skips the event.
//
// The lookup reads from the mention author's write relays plus the
// defaults: the thread the author replied in lives where they write.
func (r *Resolver) ResolveParent(ctx context.Context, evt *nostr.Event) (*Resolution, error) {
	ref := FirstReplyRef(evt)
	if ref == nil {
		return &Resolution{Content: evt.Content, ParentID: evt.ID, Root: true}, nil
	}
	if ref.EventID == "" {
		return nil, nil
	}

	if parent, ok := r.cache.Get(ref.EventID); ok {
		return &Resolution{Content: parent.Content, ParentID: parent.ID}, nil
	}

	relays := relayset.ForEvent(evt).Write
	if ref.Relay != "" {
		relays = append(relays, ref.Relay)
	}
	filter := nostr.Filter{IDs: []string{ref.EventID}, Limit: 1}
	events, err := r.Network.Fetch(ctx, filter, r.Timeout, relays...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// transport trouble and a genuinely absent event look the same
		// from here: nothing reachable produced the parent in time
		return nil, fmt.Errorf("%w: %v", ErrParentNotFound, err)
	}
	if len(events) == 0 {
		return nil, ErrParentNotFound
	}

	parent := events[0]
	r.cache.Add(ref.EventID, parent)
	return &Resolution{Content: parent.Content, ParentID: parent.ID}, nil
}
