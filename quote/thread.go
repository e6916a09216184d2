package quote

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ReplyRef is a mention's reply-reference ("e" tag), parsed once at
// ingestion instead of re-scanning raw tag arrays at every call site.
// Marker is the optional NIP-10 marker ("root", "reply", "mention").
type ReplyRef struct {
	EventID string
	Relay   string
	Marker  string
}

// ParseReplyRefs returns the event's reply references in tag order.
func ParseReplyRefs(evt *nostr.Event) []ReplyRef {
	var refs []ReplyRef
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		ref := ReplyRef{EventID: tag[1]}
		if len(tag) > 2 {
			ref.Relay = tag[2]
		}
		if len(tag) > 3 {
			ref.Marker = tag[3]
		}
		refs = append(refs, ref)
	}
	return refs
}

// FirstReplyRef returns the first reply reference in tag order, or nil
// when the event is a conversation root. First-tag-wins is a deliberate
// choice carried over from the bot's original behavior: when an event
// carries several "e" tags, the first one names the note to quote.
func FirstReplyRef(evt *nostr.Event) *ReplyRef {
	refs := ParseReplyRefs(evt)
	if len(refs) == 0 {
		return nil
	}
	return &refs[0]
}

// BuildReply composes the bot's unsigned reply to a mention, threaded per
// NIP-10: the mention's thread root is carried forward (its "root"-marked
// tag, or failing that its first "e" tag), the mention itself becomes the
// direct parent, and the mention's author is p-tagged so their client
// notifies them.
func BuildReply(mention *nostr.Event, content string) *nostr.Event {
	reply := &nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Now(),
		Content:   content,
	}

	refs := ParseReplyRefs(mention)
	if len(refs) == 0 {
		// the mention is the thread root
		reply.Tags = nostr.Tags{
			{"e", mention.ID, "", "root"},
			{"p", mention.PubKey},
		}
		return reply
	}

	root := refs[0]
	for _, ref := range refs {
		if ref.Marker == "root" {
			root = ref
			break
		}
	}
	reply.Tags = nostr.Tags{
		{"e", root.EventID, root.Relay, "root"},
		{"e", mention.ID, "", "reply"},
		{"p", mention.PubKey},
	}
	return reply
}

// RequesterNpub is the bech32 mention of an event's author, used verbatim
// in reply text. Falls back to the hex key if encoding fails.
func RequesterNpub(evt *nostr.Event) string {
	npub, err := nip19.EncodePublicKey(evt.PubKey)
	if err != nil {
		return evt.PubKey
	}
	return npub
}

// SuccessReply is the reply content for a rendered and uploaded quote.
func SuccessReply(requesterNpub, imageURL string) string {
	return fmt.Sprintf("%s \n\n%s", requesterNpub, imageURL)
}

// ApologyReply is the reply content when the quoted event cannot be
// found anywhere.
func ApologyReply(requesterNpub string) string {
	return fmt.Sprintf("%s Sorry, I couldn't find the event you want to quote", requesterNpub)
}
