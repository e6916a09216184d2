// Package presence publishes the bot's profile metadata and relay list
// so other clients can discover it and render its replies nicely.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"

	"github.com/felixzieger/quotebot/quote"
	"github.com/felixzieger/quotebot/quote/relayset"
)

// Profile is the kind 0 metadata document, in the shape clients expect.
type Profile struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Website     string `json:"website"`
	Nip05       string `json:"nip05"`
	Picture     string `json:"picture"`
	Lud16       string `json:"lud16"`
	Bot         bool   `json:"bot"`
}

// DefaultProfile returns the bot's public identity. A non-prod stage is
// flagged in both the name and the about text so test instances are
// unmistakable in the wild.
func DefaultProfile(stage string) Profile {
	name := "Note to Quote Bot"
	about := "I turn Nostr notes into quote images. Mention me in a reply to get a quote image!"
	if stage == "dev" {
		name = "[DEV] " + name
		about = "[DEV] " + about
	}
	return Profile{
		Name:        name,
		DisplayName: name,
		About:       about,
		Website:     "https://note-to-quote.vercel.app",
		Nip05:       "_@note-to-quote.vercel.app",
		Picture:     "https://note-to-quote.vercel.app/me.png",
		Lud16:       "fallingtree17238@getalby.com",
		Bot:         true,
	}
}

// BuildProfileEvent wraps the profile in an unsigned kind 0 event.
func BuildProfileEvent(profile Profile) (*nostr.Event, error) {
	content, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	return &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindProfileMetadata,
		Tags:      nostr.Tags{},
		Content:   string(content),
	}, nil
}

// BuildRelayListEvent builds the unsigned kind 10002 relay list: one r
// tag per relay, marked with the role the bot uses it for.
func BuildRelayListEvent(rs relayset.RelaySet) *nostr.Event {
	tags := make(nostr.Tags, 0, len(rs.Write)+len(rs.Read))
	for _, url := range rs.Write {
		tags = append(tags, nostr.Tag{"r", url, "write"})
	}
	for _, url := range rs.Read {
		tags = append(tags, nostr.Tag{"r", url, "read"})
	}
	return &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindRelayListMetadata,
		Tags:      tags,
		Content:   "",
	}
}

// Announce signs and publishes the profile and relay list to every
// default relay. Failures are reported but are safe to treat as
// non-fatal; the bot works without a published presence.
func Announce(ctx context.Context, logger *slog.Logger, network quote.EventNetwork, ident *quote.Identity, stage string) error {
	targets := relayset.Defaults().Union()

	profileEvt, err := BuildProfileEvent(DefaultProfile(stage))
	if err != nil {
		return err
	}
	relayListEvt := BuildRelayListEvent(relayset.Defaults())

	var out error
	for _, evt := range []*nostr.Event{profileEvt, relayListEvt} {
		if err := evt.Sign(ident.SecretKey); err != nil {
			return fmt.Errorf("signing kind %d: %w", evt.Kind, err)
		}
		receipt, err := network.Send(ctx, evt, targets...)
		if err != nil {
			out = errors.Join(out, fmt.Errorf("announcing kind %d: %w", evt.Kind, err))
			continue
		}
		logger.Info("published presence event",
			"kind", evt.Kind,
			"accepted", len(receipt.Succeeded),
			"refused", len(receipt.Failed))
	}
	return out
}
