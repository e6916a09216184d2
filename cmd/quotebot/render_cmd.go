package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	cli "github.com/urfave/cli/v2"

	"github.com/felixzieger/quotebot/quote/relayset"
	"github.com/felixzieger/quotebot/quote/render"
)

var renderCmd = &cli.Command{
	Name:      "render",
	Usage:     "render one note to a quote image, without replying to anyone",
	ArgsUsage: "<note1... | nevent1... | hex event id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "relay",
			Usage: "relay hostname the quote site should fetch the note from",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "write the PNG to this path",
		},
		&cli.BoolFlag{
			Name:  "upload",
			Usage: "upload the PNG to imgBB and print the URL",
		},
		&cli.StringFlag{
			Name:    "imgbb-key",
			Usage:   "imgBB API key, required with --upload",
			EnvVars: []string{"IMGBB_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "quote-site",
			Usage:   "base URL of the quote rendering site",
			Value:   render.DefaultSiteURL,
			EnvVars: []string{"QUOTE_SITE_URL"},
		},
		&cli.StringFlag{
			Name:    "browser-path",
			Usage:   "path to a chromium binary, when autodetection fails",
			EnvVars: []string{"QUOTEBOT_BROWSER_PATH"},
		},
	},
	Action: func(cctx *cli.Context) error {
		// logs go to stderr so stdout stays clean for the result
		logger := configLogger(cctx, os.Stderr)

		ref := cctx.Args().First()
		if ref == "" {
			return fmt.Errorf("an event reference is required (note1, nevent1, or hex id)")
		}
		eventID, relayHint, err := parseEventRef(ref)
		if err != nil {
			return err
		}
		if hint := cctx.String("relay"); hint != "" {
			relayHint = hint
		}
		if relayHint == "" {
			relayHint = relayset.FallbackRenderHint
		}
		relayHint = strings.TrimPrefix(strings.TrimPrefix(relayHint, "wss://"), "ws://")

		site, err := render.NewSiteRenderer(logger, cctx.String("quote-site"))
		if err != nil {
			return err
		}
		site.ExecPath = cctx.String("browser-path")

		ctx := context.Background()
		png, err := site.CaptureQuote(ctx, eventID, relayHint)
		if err != nil {
			return err
		}

		outPath := cctx.String("output")
		if outPath == "" && !cctx.Bool("upload") {
			outPath = eventID[:12] + ".png"
		}
		if outPath != "" {
			if err := os.WriteFile(outPath, png, 0644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
			fmt.Println(outPath)
		}
		if cctx.Bool("upload") {
			uploader := render.NewImgBBClient(logger, cctx.String("imgbb-key"))
			imageURL, err := uploader.Upload(ctx, png)
			if err != nil {
				return err
			}
			fmt.Println(imageURL)
		}
		return nil
	},
}

// parseEventRef accepts an event reference as bech32 (note1 or nevent1)
// or a raw hex id, and returns the hex id plus any relay hint the
// reference carried.
func parseEventRef(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "note1"):
		prefix, value, err := nip19.Decode(ref)
		if err != nil {
			return "", "", fmt.Errorf("decoding event reference: %w", err)
		}
		if prefix != "note" {
			return "", "", fmt.Errorf("expected a note reference, got %s", prefix)
		}
		return value.(string), "", nil
	case strings.HasPrefix(ref, "nevent1"):
		prefix, value, err := nip19.Decode(ref)
		if err != nil {
			return "", "", fmt.Errorf("decoding event reference: %w", err)
		}
		if prefix != "nevent" {
			return "", "", fmt.Errorf("expected an nevent reference, got %s", prefix)
		}
		ptr := value.(nostr.EventPointer)
		hint := ""
		if len(ptr.Relays) > 0 {
			hint = ptr.Relays[0]
		}
		return ptr.ID, hint, nil
	default:
		if len(ref) != 64 {
			return "", "", fmt.Errorf("event id must be 32 bytes of hex, note1, or nevent1")
		}
		if _, err := hex.DecodeString(ref); err != nil {
			return "", "", fmt.Errorf("event id is not valid hex: %w", err)
		}
		return strings.ToLower(ref), "", nil
	}
}
