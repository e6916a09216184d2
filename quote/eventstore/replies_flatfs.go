package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	datastore "github.com/ipfs/go-datastore"
	flatfs "github.com/ipfs/go-ds-flatfs"
	"github.com/nbd-wtf/go-nostr"
)

// FlatfsReplyStore keeps one JSON file per handled mention in a sharded
// directory. Puts go through write+fsync+rename, which is what makes the
// save-before-send ordering in the pipeline meaningful.
type FlatfsReplyStore struct {
	ds *flatfs.Datastore
}

var _ ReplyStore = (*FlatfsReplyStore)(nil)

func NewFlatfsReplyStore(dir string) (*FlatfsReplyStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating reply store dir: %w", err)
	}
	fds, err := flatfs.CreateOrOpen(dir, flatfs.IPFS_DEF_SHARD, true)
	if err != nil {
		return nil, fmt.Errorf("opening reply store: %w", err)
	}
	return &FlatfsReplyStore{ds: fds}, nil
}

func replyKey(id string) datastore.Key {
	return datastore.NewKey("reply_to_" + id)
}

func (s *FlatfsReplyStore) HasReply(ctx context.Context, id string) (bool, error) {
	return s.ds.Has(ctx, replyKey(id))
}

func (s *FlatfsReplyStore) SaveReply(ctx context.Context, id string, reply *nostr.Event) error {
	b, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encoding reply for %s: %w", id, err)
	}
	return s.ds.Put(ctx, replyKey(id), b)
}

func (s *FlatfsReplyStore) GetReply(ctx context.Context, id string) (*nostr.Event, error) {
	b, err := s.ds.Get(ctx, replyKey(id))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, ErrNoReply
		}
		return nil, err
	}
	var evt nostr.Event
	if err := json.Unmarshal(b, &evt); err != nil {
		return nil, fmt.Errorf("parsing saved reply for %s: %w", id, err)
	}
	return &evt, nil
}

func (s *FlatfsReplyStore) Close() error {
	return s.ds.Close()
}
