package quote

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Identity is the bot's signing identity. PublicKey and Npub are derived
// from the secret key at construction time.
type Identity struct {
	SecretKey string
	PublicKey string
	Npub      string
}

// NewIdentity parses a secret key in nsec or hex form and derives the
// public identity. When expectedPubkey is non-empty it is checked against
// the derived key, which catches a mispasted credential pair at startup
// instead of after the first signed reply bounces.
func NewIdentity(secretKey, expectedPubkey string) (*Identity, error) {
	sk := strings.TrimSpace(secretKey)
	if sk == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if strings.HasPrefix(sk, "nsec1") {
		prefix, value, err := nip19.Decode(sk)
		if err != nil {
			return nil, fmt.Errorf("decoding secret key: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("expected an nsec key, got %s", prefix)
		}
		sk = value.(string)
	}
	if len(sk) != 64 {
		return nil, fmt.Errorf("secret key must be 32 bytes of hex or an nsec string")
	}
	if _, err := hex.DecodeString(sk); err != nil {
		return nil, fmt.Errorf("secret key is not valid hex: %w", err)
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	if expectedPubkey != "" {
		want, err := DecodePublicKey(expectedPubkey)
		if err != nil {
			return nil, err
		}
		if want != pk {
			return nil, fmt.Errorf("configured public key does not match the secret key")
		}
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		return nil, fmt.Errorf("encoding npub: %w", err)
	}
	return &Identity{SecretKey: sk, PublicKey: pk, Npub: npub}, nil
}

// DecodePublicKey accepts a public key as npub or hex and returns the
// hex form.
func DecodePublicKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("decoding public key: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("expected an npub key, got %s", prefix)
		}
		return value.(string), nil
	}
	if len(s) != 64 {
		return "", fmt.Errorf("public key must be 32 bytes of hex or an npub string")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("public key is not valid hex: %w", err)
	}
	return strings.ToLower(s), nil
}

// NoteID is the bech32 form of an event id, used for log lines and store
// keys. Falls back to the raw hex id if encoding fails.
func NoteID(id string) string {
	note, err := nip19.EncodeNote(id)
	if err != nil {
		return id
	}
	return note
}
