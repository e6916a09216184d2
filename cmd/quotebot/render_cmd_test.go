package main

import (
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
)

func TestParseEventRef(t *testing.T) {
	assert := assert.New(t)

	id := strings.Repeat("ab", 32)

	hexID, hint, err := parseEventRef(strings.ToUpper(id))
	assert.NoError(err)
	assert.Equal(id, hexID)
	assert.Empty(hint)

	note, err := nip19.EncodeNote(id)
	assert.NoError(err)
	noteID, hint, err := parseEventRef(note)
	assert.NoError(err)
	assert.Equal(id, noteID)
	assert.Empty(hint)

	nevent, err := nip19.EncodeEvent(id, []string{"wss://relay.damus.io"}, "")
	assert.NoError(err)
	neventID, hint, err := parseEventRef(nevent)
	assert.NoError(err)
	assert.Equal(id, neventID)
	assert.Equal("wss://relay.damus.io", hint)

	for _, bad := range []string{"", "xyz", "note1qqqq", strings.Repeat("zz", 32)} {
		_, _, err := parseEventRef(bad)
		assert.Error(err, "input %q", bad)
	}
}
