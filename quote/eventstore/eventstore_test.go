package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedReplyFixture(t *testing.T) *nostr.Event {
	t.Helper()
	f := gofakeit.New(42)
	evt := &nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Now(),
		Content:   f.Sentence(12),
		Tags: nostr.Tags{
			{"e", "5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36", "", "root"},
			{"p", "32e1827635450ebb3c5a7d12c1f8e7b2b514439ac10a67eef3d9fd9c5c68e245"},
		},
	}
	require.NoError(t, evt.Sign(nostr.GeneratePrivateKey()))
	return evt
}

func TestMemProcessedStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemProcessedStore()

	done, err := s.IsProcessed(ctx, "note1abc")
	assert.NoError(err)
	assert.False(done)

	assert.NoError(s.MarkProcessed(ctx, "note1abc", time.Now()))

	done, err = s.IsProcessed(ctx, "note1abc")
	assert.NoError(err)
	assert.True(done)

	// marking twice is a no-op, not an error
	assert.NoError(s.MarkProcessed(ctx, "note1abc", time.Now()))
	assert.Equal(1, s.Size())

	done, err = s.IsProcessed(ctx, "note1other")
	assert.NoError(err)
	assert.False(done)
}

func TestMemProcessedStoreConcurrent(t *testing.T) {
	// meant to be run with -race
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemProcessedStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("note1worker%d-%d", n, j)
				if err := s.MarkProcessed(ctx, id, time.Now()); err != nil {
					t.Error(err)
				}
				if _, err := s.IsProcessed(ctx, id); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(800, s.Size())
}

func TestFlatfsReplyStoreRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFlatfsReplyStore(dir)
	require.NoError(t, err)

	reply := signedReplyFixture(t)
	key := "note1mention"

	has, err := s.HasReply(ctx, key)
	assert.NoError(err)
	assert.False(has)

	assert.NoError(s.SaveReply(ctx, key, reply))

	has, err = s.HasReply(ctx, key)
	assert.NoError(err)
	assert.True(has)

	got, err := s.GetReply(ctx, key)
	assert.NoError(err)
	assert.Equal(reply.ID, got.ID)
	assert.Equal(reply.Content, got.Content)
	assert.Equal(reply.Sig, got.Sig)
	assert.Equal(reply.Tags, got.Tags)

	// records survive a close and reopen
	assert.NoError(s.Close())
	reopened, err := NewFlatfsReplyStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	has, err = reopened.HasReply(ctx, key)
	assert.NoError(err)
	assert.True(has)
}

func TestFlatfsReplyStoreMissing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s, err := NewFlatfsReplyStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetReply(ctx, "note1never")
	assert.True(errors.Is(err, ErrNoReply))
}
