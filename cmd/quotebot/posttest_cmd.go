package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	cli "github.com/urfave/cli/v2"

	"github.com/felixzieger/quotebot/quote"
	"github.com/felixzieger/quotebot/relaypool"
)

var postTestCmd = &cli.Command{
	Name:  "post-test",
	Usage: "post a throwaway note plus a reply mentioning the bot, to exercise a running instance",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "relay",
			Usage: "relay to post the test thread to",
			Value: "wss://strfry.felixzieger.de",
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stderr)

		botPub, err := quote.DecodePublicKey(cctx.String("public-key"))
		if err != nil {
			return fmt.Errorf("a bot public key is required: %w", err)
		}
		botNpub, err := nip19.EncodePublicKey(botPub)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		relayURL := cctx.String("relay")
		pool := relaypool.NewPool(logger, []string{relayURL})
		defer pool.Close()

		// throwaway identity for the test thread
		sk := nostr.GeneratePrivateKey()

		root := &nostr.Event{
			CreatedAt: nostr.Now(),
			Kind:      nostr.KindTextNote,
			Tags:      nostr.Tags{},
			Content:   "This is a test note that will be quoted.",
		}
		if err := root.Sign(sk); err != nil {
			return err
		}
		if _, err := pool.Send(ctx, root); err != nil {
			return fmt.Errorf("posting root note: %w", err)
		}
		fmt.Printf("posted root note %s\n", quote.NoteID(root.ID))

		// read our own write back, so the reply only goes out once the
		// relay is actually serving the note the bot will quote
		fetched, err := pool.Fetch(ctx, nostr.Filter{IDs: []string{root.ID}, Limit: 1}, 5*time.Second)
		if err != nil || len(fetched) == 0 {
			return fmt.Errorf("relay %s did not serve the root note back: %v", relayURL, err)
		}

		reply := &nostr.Event{
			CreatedAt: nostr.Now(),
			Kind:      nostr.KindTextNote,
			Tags: nostr.Tags{
				{"e", root.ID, "", "root"},
				{"p", root.PubKey},
				// the bot's mention poll matches on its own p tag
				{"p", botPub},
			},
			Content: fmt.Sprintf("Hello @%s! Please quote the note above.", botNpub),
		}
		if err := reply.Sign(sk); err != nil {
			return err
		}
		if _, err := pool.Send(ctx, reply); err != nil {
			return fmt.Errorf("posting reply: %w", err)
		}
		fmt.Printf("posted reply %s mentioning %s\n", quote.NoteID(reply.ID), botNpub)
		return nil
	},
}
