// Package relayset derives per-author relay routing from event tags.
//
// Authors advertise relay hints as "r" tags, optionally marked "read" or
// "write". The sets produced here always include the compiled default
// relays, so the bot is never left without a path to reply.
package relayset

import (
	"sort"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// DefaultWriteRelays are relays notes get written to. Thread lookups
// always include them, and the mention poll covers them.
var DefaultWriteRelays = []string{
	"wss://strfry.felixzieger.de",
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://nostr.mom",
}

// DefaultReadRelays are relays people read their feeds from. Every reply
// send includes them so the mention author sees the result.
var DefaultReadRelays = []string{
	"wss://relay.nostr.band",
	"wss://relay.nostr.bg",
	"wss://nostr.bitcoiner.social",
	"wss://relay.snort.social",
	"wss://purplepag.es",
}

// FallbackRenderHint is handed to the quote site when an event carries no
// usable relay hint.
const FallbackRenderHint = "relay.damus.io"

// RelaySet holds the relays one author writes to and reads from, as
// advertised by one of their events. Both slices are normalized,
// deduplicated, and sorted.
type RelaySet struct {
	Write []string
	Read  []string
}

// ForEvent merges the default relay lists with the event's "r" tag hints.
// A hint marked "write" or "read" lands only in that set; an unmarked hint
// or any other marker lands in both.
func ForEvent(evt *nostr.Event) RelaySet {
	write := defaultSet(DefaultWriteRelays)
	read := defaultSet(DefaultReadRelays)
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "r" || tag[1] == "" {
			continue
		}
		u := nostr.NormalizeURL(tag[1])
		if u == "" {
			continue
		}
		marker := ""
		if len(tag) > 2 {
			marker = tag[2]
		}
		switch marker {
		case "write":
			write[u] = true
		case "read":
			read[u] = true
		default:
			write[u] = true
			read[u] = true
		}
	}
	return RelaySet{Write: sorted(write), Read: sorted(read)}
}

// Defaults returns the compiled default sets alone, normalized the same
// way ForEvent output is.
func Defaults() RelaySet {
	return RelaySet{
		Write: sorted(defaultSet(DefaultWriteRelays)),
		Read:  sorted(defaultSet(DefaultReadRelays)),
	}
}

// Union flattens the set into one deduplicated relay list.
func (rs RelaySet) Union() []string {
	all := make(map[string]bool, len(rs.Write)+len(rs.Read))
	for _, r := range rs.Write {
		all[r] = true
	}
	for _, r := range rs.Read {
		all[r] = true
	}
	return sorted(all)
}

// PrimaryHint returns the first "r" tag value with its websocket scheme
// stripped, or FallbackRenderHint when the event has none. The quote site
// takes a bare hostname in its query string.
func PrimaryHint(evt *nostr.Event) string {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "r" && tag[1] != "" {
			u := strings.TrimPrefix(tag[1], "wss://")
			return strings.TrimPrefix(u, "ws://")
		}
	}
	return FallbackRenderHint
}

func defaultSet(relays []string) map[string]bool {
	set := make(map[string]bool, len(relays))
	for _, r := range relays {
		set[nostr.NormalizeURL(r)] = true
	}
	return set
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
