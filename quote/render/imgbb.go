package render

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/go-querystring/query"

	"github.com/felixzieger/quotebot/pkg/robusthttp"
)

// DefaultImgBBEndpoint is the imgBB upload API.
// https://api.imgbb.com/
const DefaultImgBBEndpoint = "https://api.imgbb.com/1/upload"

// ImgBBClient uploads rendered quote images to the imgBB hosting API.
type ImgBBClient struct {
	Client   *http.Client
	APIKey   string
	Endpoint string
}

// NewImgBBClient returns a client with a retrying HTTP transport. apiKey
// is the account credential, supplied out of band.
func NewImgBBClient(logger *slog.Logger, apiKey string) *ImgBBClient {
	return &ImgBBClient{
		Client:   robusthttp.NewClient(logger),
		APIKey:   apiKey,
		Endpoint: DefaultImgBBEndpoint,
	}
}

type imgbbParams struct {
	Key string `url:"key"`
}

type imgbbResp struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
		DeleteURL  string `json:"delete_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Upload pushes PNG bytes to imgBB and returns the hosted image URL.
func (c *ImgBBClient) Upload(ctx context.Context, png []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("imgBB API key is not configured")
	}

	params, err := query.Values(imgbbParams{Key: c.APIKey})
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(png))

	req, err := http.NewRequestWithContext(ctx, "POST", c.Endpoint+"?"+params.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "quotebot/"+versioninfo.Short())

	start := time.Now()
	resp, err := c.Client.Do(req)
	uploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		uploadCount.WithLabelValues("error").Inc()
		return "", fmt.Errorf("imgBB request failed: %w", err)
	}
	defer resp.Body.Close()
	uploadCount.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading imgBB response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("imgBB upload failed, status %d: %s", resp.StatusCode, string(body))
	}

	var parsed imgbbResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing imgBB response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("imgBB API error: %s", msg)
	}
	if parsed.Data.URL == "" {
		return "", fmt.Errorf("imgBB response carried no image URL")
	}
	return parsed.Data.URL, nil
}
