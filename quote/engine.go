package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/felixzieger/quotebot/quote/eventstore"
	"github.com/felixzieger/quotebot/quote/relayset"
	"github.com/felixzieger/quotebot/quote/render"
)

// Engine runs the mention-to-quote pipeline, one event at a time. The
// poll loop feeds it an overlapping window of candidate mentions every
// cycle; the engine's dedup state turns the repeats into no-ops.
//
// Relay routing is deliberately inverted relative to the author's own
// relay list: their write relays are where the bot reads the thread
// from, and their read relays are where the bot publishes the reply so
// they will actually see it.
type Engine struct {
	Logger    *slog.Logger
	Identity  *Identity
	Network   EventNetwork
	Renderer  render.Renderer
	Processed eventstore.ProcessedStore
	Replies   eventstore.ReplyStore
	Resolver  *Resolver
}

// ProcessEvent handles one mention end to end: dedup, parent resolution,
// rendering, reply composition, persistence, send. Once an event is
// marked processed it will never be picked up again, regardless of
// whether the send landed; failures before that point leave the event
// eligible for the next poll cycle.
func (e *Engine) ProcessEvent(ctx context.Context, evt *nostr.Event) error {
	ctx, span := tracer.Start(ctx, "ProcessEvent")
	defer span.End()

	// keep the poll loop alive through any single badly-behaved event
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("quote pipeline panic", "event", evt.ID, "panic", r)
		}
	}()

	start := time.Now()
	key := NoteID(evt.ID)

	done, err := e.Processed.IsProcessed(ctx, key)
	if err != nil {
		return fmt.Errorf("checking processed state: %w", err)
	}
	if done {
		return nil
	}
	if evt.PubKey == e.Identity.PublicKey {
		// never reply to our own notes
		mentionsSkipped.WithLabelValues("self").Inc()
		return nil
	}

	logger := e.Logger.With("event", key, "author", evt.PubKey)
	logger.Info("processing mention")

	saved, err := e.Replies.HasReply(ctx, key)
	if err != nil {
		return fmt.Errorf("checking saved reply: %w", err)
	}
	if saved {
		// a reply was persisted in an earlier run that died before the
		// processed mark landed; do not render or send again
		logger.Info("reply already saved, marking processed")
		mentionsSkipped.WithLabelValues("already_replied").Inc()
		return e.markProcessed(ctx, key)
	}

	res, err := e.Resolver.ResolveParent(ctx, evt)
	if err != nil && !errors.Is(err, ErrParentNotFound) {
		// shutdown or store trouble, leave the event for the next cycle
		return fmt.Errorf("resolving parent: %w", err)
	}
	if err == nil && res == nil {
		logger.Info("mention has a dangling reply reference, skipping")
		mentionsSkipped.WithLabelValues("dangling_ref").Inc()
		return e.markProcessed(ctx, key)
	}

	var content string
	replyKind := "quote"
	if errors.Is(err, ErrParentNotFound) {
		logger.Info("parent not found, replying with apology", "err", err)
		content = ApologyReply(RequesterNpub(evt))
		replyKind = "apology"
	} else {
		imageURL, rerr := e.Renderer.RenderQuote(ctx, render.QuoteRequest{
			SourceText:    res.Content,
			SourceEventID: res.ParentID,
			RelayHint:     relayset.PrimaryHint(evt),
		})
		switch {
		case rerr == nil:
			content = SuccessReply(RequesterNpub(evt), imageURL)
		case errors.Is(rerr, render.ErrSourceNotFound):
			logger.Info("quote source not found, replying with apology", "err", rerr)
			content = ApologyReply(RequesterNpub(evt))
			replyKind = "apology"
		default:
			// tooling failure: no reply, and no tight-loop retry either
			logger.Error("quote render failed", "err", rerr)
			renderFailures.Inc()
			return e.markProcessed(ctx, key)
		}
	}

	reply := BuildReply(evt, content)
	if err := reply.Sign(e.Identity.SecretKey); err != nil {
		return fmt.Errorf("signing reply: %w", err)
	}

	// durable before send: a crash after this point must not repost
	if err := e.Replies.SaveReply(ctx, key, reply); err != nil {
		return fmt.Errorf("saving reply: %w", err)
	}
	logger.Info("saved reply", "reply", NoteID(reply.ID))

	targets := relayset.ForEvent(evt).Read
	receipt, err := e.Network.Send(ctx, reply, targets...)
	if err != nil {
		// logged and accepted: the saved record already guarantees this
		// mention never gets a second attempt
		logger.Error("reply send failed", "err", err)
		repliesSendFailed.Inc()
	} else {
		logger.Info("reply sent", "reply", NoteID(reply.ID), "relays", receipt.Succeeded, "failedRelays", receipt.Failed)
		repliesSent.WithLabelValues(replyKind).Inc()
	}

	pipelineDuration.Observe(time.Since(start).Seconds())
	return e.markProcessed(ctx, key)
}

func (e *Engine) markProcessed(ctx context.Context, key string) error {
	if err := e.Processed.MarkProcessed(ctx, key, time.Now()); err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}
	mentionsProcessed.Inc()
	return nil
}
