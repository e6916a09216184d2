package quote

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"

	"github.com/felixzieger/quotebot/quote/eventstore"
	"github.com/felixzieger/quotebot/quote/render"
)

type fetchCall struct {
	filter nostr.Filter
	relays []string
}

type sendCall struct {
	evt    *nostr.Event
	relays []string
}

// fakeNetwork serves events out of a map keyed by id and records every
// call, including which relays it was pointed at.
type fakeNetwork struct {
	lk       sync.Mutex
	events   map[string]*nostr.Event
	fetchErr error
	sendErr  error
	fetches  []fetchCall
	sends    []sendCall
}

func (f *fakeNetwork) Fetch(ctx context.Context, filter nostr.Filter, timeout time.Duration, relays ...string) ([]*nostr.Event, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.fetches = append(f.fetches, fetchCall{filter: filter, relays: relays})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []*nostr.Event
	for _, id := range filter.IDs {
		if evt, ok := f.events[id]; ok {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeNetwork) Send(ctx context.Context, evt *nostr.Event, relays ...string) (*SendReceipt, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.sends = append(f.sends, sendCall{evt: evt, relays: relays})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &SendReceipt{Succeeded: relays}, nil
}

type fakeRenderer struct {
	url   string
	err   error
	calls []render.QuoteRequest
}

func (f *fakeRenderer) RenderQuote(ctx context.Context, req render.QuoteRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type engineFixture struct {
	engine    *Engine
	network   *fakeNetwork
	renderer  *fakeRenderer
	processed *eventstore.MemProcessedStore
	replies   *eventstore.FlatfsReplyStore
	ident     *Identity
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	ident, err := NewIdentity(nostr.GeneratePrivateKey(), "")
	if err != nil {
		t.Fatal(err)
	}
	replies, err := eventstore.NewFlatfsReplyStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { replies.Close() })

	network := &fakeNetwork{events: make(map[string]*nostr.Event)}
	renderer := &fakeRenderer{url: "https://i.ibb.co/wf91Fh0/quote.png"}
	processed := eventstore.NewMemProcessedStore()
	return &engineFixture{
		engine: &Engine{
			Logger:    slog.Default(),
			Identity:  ident,
			Network:   network,
			Renderer:  renderer,
			Processed: processed,
			Replies:   replies,
			Resolver:  NewResolver(network, time.Second),
		},
		network:   network,
		renderer:  renderer,
		processed: processed,
		replies:   replies,
		ident:     ident,
	}
}

func (f *engineFixture) isProcessed(t *testing.T, evt *nostr.Event) bool {
	t.Helper()
	done, err := f.processed.IsProcessed(context.Background(), NoteID(evt.ID))
	if err != nil {
		t.Fatal(err)
	}
	return done
}

func signedEventWithTags(t *testing.T, sk string, content string, tags nostr.Tags) *nostr.Event {
	t.Helper()
	evt := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      tags,
		Content:   content,
	}
	if err := evt.Sign(sk); err != nil {
		t.Fatal(err)
	}
	return evt
}

func TestEngineQuotesRootMention(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"Hey bot, make this a quote!",
		nostr.Tags{{"p", fix.ident.PublicKey}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))

	if assert.Len(fix.renderer.calls, 1) {
		assert.Equal(mention.Content, fix.renderer.calls[0].SourceText)
		assert.Equal(mention.ID, fix.renderer.calls[0].SourceEventID)
	}

	if !assert.Len(fix.network.sends, 1) {
		return
	}
	reply := fix.network.sends[0].evt
	assert.Equal(nostr.KindTextNote, reply.Kind)
	assert.Equal(SuccessReply(RequesterNpub(mention), fix.renderer.url), reply.Content)
	assert.Equal(fix.ident.PublicKey, reply.PubKey)
	ok, err := reply.CheckSignature()
	assert.NoError(err)
	assert.True(ok)

	assert.Equal(nostr.Tags{
		{"e", mention.ID, "", "root"},
		{"p", mention.PubKey},
	}, reply.Tags)

	assert.True(fix.isProcessed(t, mention))
	saved, err := fix.replies.GetReply(context.Background(), NoteID(mention.ID))
	assert.NoError(err)
	assert.Equal(reply.ID, saved.ID)
}

func TestEngineQuotesParentOfReply(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	root := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"This is a test note that will be quoted.", nostr.Tags{})
	fix.network.events[root.ID] = root

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"Hello bot! Please quote the note above.",
		nostr.Tags{
			{"e", root.ID},
			{"p", fix.ident.PublicKey},
		})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))

	if assert.Len(fix.network.fetches, 1) {
		assert.Equal([]string{root.ID}, fix.network.fetches[0].filter.IDs)
	}
	if assert.Len(fix.renderer.calls, 1) {
		assert.Equal(root.Content, fix.renderer.calls[0].SourceText)
		assert.Equal(root.ID, fix.renderer.calls[0].SourceEventID)
	}

	if !assert.Len(fix.network.sends, 1) {
		return
	}
	reply := fix.network.sends[0].evt
	assert.Equal(SuccessReply(RequesterNpub(mention), fix.renderer.url), reply.Content)
	assert.Equal(nostr.Tags{
		{"e", root.ID, "", "root"},
		{"e", mention.ID, "", "reply"},
		{"p", mention.PubKey},
	}, reply.Tags)
	assert.True(fix.isProcessed(t, mention))
}

func TestEngineSkipsOwnNotes(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	selfNote := signedEventWithTags(t, fix.ident.SecretKey,
		"quoting myself would never end", nostr.Tags{})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), selfNote))
	assert.Empty(fix.renderer.calls)
	assert.Empty(fix.network.sends)
	// stays unmarked, the self check wins on every cycle
	assert.False(fix.isProcessed(t, selfNote))
}

func TestEngineProcessesEachMentionOnce(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote this please", nostr.Tags{{"p", fix.ident.PublicKey}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))

	assert.Len(fix.renderer.calls, 1)
	assert.Len(fix.network.sends, 1)
}

func TestEngineRecoversSavedReplyWithoutResending(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote this before the crash", nostr.Tags{{"p", fix.ident.PublicKey}})
	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.Len(fix.network.sends, 1)

	// restart: the reply records survive on disk, the processed table
	// does not
	network := &fakeNetwork{events: make(map[string]*nostr.Event)}
	renderer := &fakeRenderer{url: "https://i.ibb.co/other.png"}
	restarted := &Engine{
		Logger:    slog.Default(),
		Identity:  fix.ident,
		Network:   network,
		Renderer:  renderer,
		Processed: eventstore.NewMemProcessedStore(),
		Replies:   fix.replies,
		Resolver:  NewResolver(network, time.Second),
	}

	assert.NoError(restarted.ProcessEvent(context.Background(), mention))
	assert.Empty(renderer.calls)
	assert.Empty(network.sends)
	done, err := restarted.Processed.IsProcessed(context.Background(), NoteID(mention.ID))
	assert.NoError(err)
	assert.True(done)
}

func TestEngineApologizesWhenParentIsMissing(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote the note above",
		nostr.Tags{
			{"e", strings.Repeat("4e", 32)},
			{"p", fix.ident.PublicKey},
		})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.Empty(fix.renderer.calls)

	if assert.Len(fix.network.sends, 1) {
		assert.Equal(ApologyReply(RequesterNpub(mention)), fix.network.sends[0].evt.Content)
	}
	assert.True(fix.isProcessed(t, mention))
}

func TestEngineApologizesWhenRelaysUnreachable(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)
	fix.network.fetchErr = errors.New("connection refused")

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote the note above",
		nostr.Tags{{"e", strings.Repeat("9a", 32)}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	if assert.Len(fix.network.sends, 1) {
		assert.Equal(ApologyReply(RequesterNpub(mention)), fix.network.sends[0].evt.Content)
	}
	assert.True(fix.isProcessed(t, mention))
}

func TestEngineApologizesWhenRenderSourceMissing(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)
	fix.renderer.err = render.ErrSourceNotFound

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote me", nostr.Tags{{"p", fix.ident.PublicKey}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	if assert.Len(fix.network.sends, 1) {
		assert.Equal(ApologyReply(RequesterNpub(mention)), fix.network.sends[0].evt.Content)
	}
	assert.True(fix.isProcessed(t, mention))
}

func TestEngineStaysSilentOnRenderToolingFailure(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)
	fix.renderer.err = errors.New("chrome exited with status 1")

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote me", nostr.Tags{{"p", fix.ident.PublicKey}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.Empty(fix.network.sends)
	assert.True(fix.isProcessed(t, mention))

	saved, err := fix.replies.HasReply(context.Background(), NoteID(mention.ID))
	assert.NoError(err)
	assert.False(saved)
}

func TestEngineSkipsDanglingReplyReference(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote... what exactly?",
		nostr.Tags{{"e", ""}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.Empty(fix.renderer.calls)
	assert.Empty(fix.network.sends)
	assert.True(fix.isProcessed(t, mention))
}

func TestEngineMarksProcessedWhenSendFails(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)
	fix.network.sendErr = errors.New("every relay refused")

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote me", nostr.Tags{{"p", fix.ident.PublicKey}})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))
	assert.True(fix.isProcessed(t, mention))

	// the reply was persisted first, so the failed send is still a
	// single spent attempt
	saved, err := fix.replies.HasReply(context.Background(), NoteID(mention.ID))
	assert.NoError(err)
	assert.True(saved)
}

func TestEngineLeavesEventForNextCycleOnShutdown(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)
	fix.network.fetchErr = errors.New("dial interrupted")

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote the note above",
		nostr.Tags{{"e", strings.Repeat("c1", 32)}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fix.engine.ProcessEvent(ctx, mention)
	assert.ErrorIs(err, context.Canceled)
	assert.Empty(fix.network.sends)
	assert.False(fix.isProcessed(t, mention))
}

func TestEngineRoutesAroundAuthorRelays(t *testing.T) {
	assert := assert.New(t)
	fix := newEngineFixture(t)

	root := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"the note being quoted", nostr.Tags{})
	fix.network.events[root.ID] = root

	mention := signedEventWithTags(t, nostr.GeneratePrivateKey(),
		"quote the note above",
		nostr.Tags{
			{"r", "wss://author-write.example", "write"},
			{"r", "wss://author-read.example", "read"},
			{"e", root.ID},
			{"p", fix.ident.PublicKey},
		})

	assert.NoError(fix.engine.ProcessEvent(context.Background(), mention))

	// the thread is fetched from where the author writes
	if assert.Len(fix.network.fetches, 1) {
		assert.Contains(fix.network.fetches[0].relays, "wss://author-write.example")
		assert.NotContains(fix.network.fetches[0].relays, "wss://author-read.example")
	}
	// the reply goes to where the author reads
	if assert.Len(fix.network.sends, 1) {
		assert.Contains(fix.network.sends[0].relays, "wss://author-read.example")
		assert.NotContains(fix.network.sends[0].relays, "wss://author-write.example")
	}
	// the first relay hint is what the quote site gets pointed at
	if assert.Len(fix.renderer.calls, 1) {
		assert.Equal("author-write.example", fix.renderer.calls[0].RelayHint)
	}
}
