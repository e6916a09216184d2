// Package relaypool maintains websocket connections to a set of Nostr
// relays and fans queries and publishes out across them.
package relaypool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"github.com/felixzieger/quotebot/quote"
)

// DefaultDialTimeout bounds a single relay connection attempt.
const DefaultDialTimeout = 10 * time.Second

// publishTimeout bounds waiting for one relay to accept an event.
const publishTimeout = 10 * time.Second

// fanoutLimit caps how many relays are worked concurrently per call.
const fanoutLimit = 8

// Pool implements quote.EventNetwork over live relay connections.
// Connections are dialed on first use and cached; a relay that fails a
// call is dropped from the cache and redialed on the next call that
// targets it.
type Pool struct {
	Logger      *slog.Logger
	DialTimeout time.Duration

	defaults []string

	lk     sync.Mutex
	relays map[string]*nostr.Relay
}

var _ quote.EventNetwork = (*Pool)(nil)

// NewPool returns a pool that targets defaults whenever a call does not
// name its own relays.
func NewPool(logger *slog.Logger, defaults []string) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		Logger:      logger,
		DialTimeout: DefaultDialTimeout,
		defaults:    defaults,
		relays:      make(map[string]*nostr.Relay),
	}
}

// Fetch queries every target relay with the filter and returns merged,
// id-deduplicated results. It succeeds when at least one relay answered
// and errors only when all of them failed.
func (p *Pool) Fetch(ctx context.Context, filter nostr.Filter, timeout time.Duration, relays ...string) ([]*nostr.Event, error) {
	targets := p.targets(relays)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no relays to query")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		lk      sync.Mutex
		merged  []*nostr.Event
		seen    = make(map[string]bool)
		okCount int
		lastErr error
	)
	var g errgroup.Group
	g.SetLimit(fanoutLimit)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			evs, err := p.query(ctx, target, filter)
			lk.Lock()
			defer lk.Unlock()
			if err != nil {
				p.Logger.Debug("relay query failed", "relay", target, "err", err)
				lastErr = err
				return nil
			}
			okCount++
			for _, ev := range evs {
				if ev == nil || seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
				merged = append(merged, ev)
			}
			return nil
		})
	}
	_ = g.Wait()

	if okCount == 0 {
		queryCount.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("all %d relays failed: %w", len(targets), lastErr)
	}
	queryCount.WithLabelValues("ok").Inc()
	eventsFetched.Add(float64(len(merged)))
	return merged, nil
}

// Send publishes a signed event to every target relay and reports which
// of them accepted it. It errors only when none did.
func (p *Pool) Send(ctx context.Context, evt *nostr.Event, relays ...string) (*quote.SendReceipt, error) {
	targets := p.targets(relays)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no relays to publish to")
	}

	var (
		lk      sync.Mutex
		receipt quote.SendReceipt
	)
	var g errgroup.Group
	g.SetLimit(fanoutLimit)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			err := p.publish(ctx, target, evt)
			lk.Lock()
			defer lk.Unlock()
			if err != nil {
				p.Logger.Debug("relay publish failed", "relay", target, "err", err)
				receipt.Failed = append(receipt.Failed, target)
			} else {
				receipt.Succeeded = append(receipt.Succeeded, target)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(receipt.Succeeded)
	sort.Strings(receipt.Failed)
	publishCount.WithLabelValues("ok").Add(float64(len(receipt.Succeeded)))
	publishCount.WithLabelValues("failed").Add(float64(len(receipt.Failed)))
	if len(receipt.Succeeded) == 0 {
		return &receipt, fmt.Errorf("event %s not accepted by any relay", evt.ID)
	}
	return &receipt, nil
}

// Close tears down every open connection. The pool stays usable; later
// calls simply redial.
func (p *Pool) Close() {
	p.lk.Lock()
	defer p.lk.Unlock()
	for target, relay := range p.relays {
		if err := relay.Close(); err != nil {
			p.Logger.Debug("closing relay connection", "relay", target, "err", err)
		}
		delete(p.relays, target)
	}
}

func (p *Pool) query(ctx context.Context, target string, filter nostr.Filter) ([]*nostr.Event, error) {
	relay, err := p.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	evs, err := relay.QuerySync(ctx, filter)
	if err != nil {
		p.drop(target, relay)
		return nil, err
	}
	return evs, nil
}

func (p *Pool) publish(ctx context.Context, target string, evt *nostr.Event) error {
	relay, err := p.connect(ctx, target)
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := relay.Publish(pubCtx, *evt); err != nil {
		p.drop(target, relay)
		return err
	}
	return nil
}

// connect returns a connection to target, dialing if none is cached.
func (p *Pool) connect(ctx context.Context, target string) (*nostr.Relay, error) {
	p.lk.Lock()
	if relay, ok := p.relays[target]; ok {
		p.lk.Unlock()
		return relay, nil
	}
	p.lk.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.DialTimeout)
	defer cancel()
	relay, err := nostr.RelayConnect(dialCtx, target)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	connectCount.Inc()

	p.lk.Lock()
	defer p.lk.Unlock()
	if existing, ok := p.relays[target]; ok {
		// lost the dial race, keep the existing connection
		relay.Close()
		return existing, nil
	}
	p.relays[target] = relay
	return relay, nil
}

// drop forgets a connection that failed a call, so the next call against
// the same relay dials fresh.
func (p *Pool) drop(target string, relay *nostr.Relay) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if current, ok := p.relays[target]; ok && current == relay {
		delete(p.relays, target)
	}
	relay.Close()
}

func (p *Pool) targets(relays []string) []string {
	if len(relays) == 0 {
		relays = p.defaults
	}
	seen := make(map[string]bool, len(relays))
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		u := nostr.NormalizeURL(r)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
