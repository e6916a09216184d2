package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrSourceNotFound reports that the event being quoted could not be
// loaded from any relay. The pipeline turns this into an apology reply;
// every other render error is a tooling failure and stays internal.
var ErrSourceNotFound = errors.New("quoted event not found on any relay")

// QuoteRequest identifies the note to render.
type QuoteRequest struct {
	// SourceText is the resolved note content. The site fetches the note
	// itself by id; the text is carried for logging.
	SourceText string
	// SourceEventID is the hex event id typed into the site.
	SourceEventID string
	// RelayHint is the bare hostname the site should fetch the note from.
	RelayHint string
}

// Renderer turns a note into a hosted quote image and returns its URL.
type Renderer interface {
	RenderQuote(ctx context.Context, req QuoteRequest) (string, error)
}

// Service is the production Renderer: drive the quote site in a headless
// browser, then push the captured PNG to imgBB. A limiter paces renders
// so a burst of mentions cannot stack browser sessions on top of each
// other.
type Service struct {
	Site     *SiteRenderer
	Uploader *ImgBBClient
	Limiter  *rate.Limiter
}

var _ Renderer = (*Service)(nil)

func NewService(site *SiteRenderer, uploader *ImgBBClient) *Service {
	return &Service{
		Site:     site,
		Uploader: uploader,
		Limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

func (s *Service) RenderQuote(ctx context.Context, req QuoteRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "RenderQuote")
	defer span.End()

	if err := s.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	png, err := s.Site.CaptureQuote(ctx, req.SourceEventID, req.RelayHint)
	if err != nil {
		return "", err
	}
	imageURL, err := s.Uploader.Upload(ctx, png)
	if err != nil {
		return "", fmt.Errorf("uploading quote image: %w", err)
	}
	return imageURL, nil
}
