package render

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixzieger/quotebot/pkg/robusthttp"
)

func TestImgBBUpload(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("POST", r.Method)
		assert.Equal("testkey", r.URL.Query().Get("key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(base64.StdEncoding.EncodeToString(png), r.PostFormValue("image"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"status":200,"data":{"url":"https://i.ibb.co/abc/quote.png"}}`))
	}))
	defer srv.Close()

	c := &ImgBBClient{
		Client:   robusthttp.TestingClient(),
		APIKey:   "testkey",
		Endpoint: srv.URL,
	}
	imageURL, err := c.Upload(ctx, png)
	assert.NoError(err)
	assert.Equal("https://i.ibb.co/abc/quote.png", imageURL)
}

func TestImgBBUploadAPIError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"status":400,"error":{"message":"Invalid API key","code":100}}`))
	}))
	defer srv.Close()

	c := &ImgBBClient{
		Client:   robusthttp.TestingClient(),
		APIKey:   "badkey",
		Endpoint: srv.URL,
	}
	_, err := c.Upload(ctx, []byte{1, 2, 3})
	assert.Error(err)
	assert.Contains(err.Error(), "400")
}

func TestImgBBUploadRejectedWithoutKey(t *testing.T) {
	assert := assert.New(t)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := &ImgBBClient{
		Client:   robusthttp.TestingClient(),
		Endpoint: srv.URL,
	}
	_, err := c.Upload(context.Background(), []byte{1})
	assert.Error(err)
	assert.False(called)
}

func TestImgBBUploadRefusesSuccessWithoutURL(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"status":200,"data":{}}`))
	}))
	defer srv.Close()

	c := &ImgBBClient{
		Client:   robusthttp.TestingClient(),
		APIKey:   "testkey",
		Endpoint: srv.URL,
	}
	_, err := c.Upload(context.Background(), []byte{1})
	assert.Error(err)
	assert.Contains(err.Error(), "no image URL")
}

func TestDecodeCanvasDataURL(t *testing.T) {
	assert := assert.New(t)

	payload := []byte("fake png bytes")
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	got, err := DecodeCanvasDataURL(dataURL)
	assert.NoError(err)
	assert.Equal(payload, got)
}

func TestDecodeCanvasDataURLRejectsJunk(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodeCanvasDataURL("")
	assert.Error(err)

	_, err = DecodeCanvasDataURL("data:image/jpeg;base64,AAAA")
	assert.Error(err)

	_, err = DecodeCanvasDataURL("data:image/png;base64,!!!not-base64!!!")
	assert.Error(err)
}

func TestNewSiteRendererNormalizesURL(t *testing.T) {
	assert := assert.New(t)

	r, err := NewSiteRenderer(nil, "HTTPS://Note-To-Quote.vercel.app/")
	assert.NoError(err)
	assert.Equal("https://note-to-quote.vercel.app", r.SiteURL)

	r, err = NewSiteRenderer(nil, "")
	assert.NoError(err)
	assert.Equal(DefaultSiteURL, r.SiteURL)
}
