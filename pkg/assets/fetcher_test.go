package assets

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vello/vello/pkg/schema"
)

const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func pngBytes(t *testing.T) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(onePixelPNG)
	require.NoError(t, err)
	return b
}

func TestFetchDataURICachesByURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t))
	}))
	defer srv.Close()

	f := NewFetcher(Options{Timeout: 5 * time.Second})
	uri, err := f.FetchDataURI(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	again, err := f.FetchDataURI(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	require.Equal(t, uri, again)
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchDataURIRejectsOversizeAndNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(make([]byte, 2048))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>not an image</html>"))
		}
	}))
	defer srv.Close()

	f := NewFetcher(Options{Timeout: 5 * time.Second, MaxBytes: 1024})

	_, err := f.FetchDataURI(context.Background(), srv.URL+"/big.png")
	require.ErrorContains(t, err, "embed cap")

	_, err = f.FetchDataURI(context.Background(), srv.URL+"/page.html")
	require.ErrorContains(t, err, "unsupported content type")
}

func TestFetchDataURIRejectsNonHTTP(t *testing.T) {
	f := NewFetcher(Options{})
	_, err := f.FetchDataURI(context.Background(), "file:///etc/passwd")
	require.Error(t, err)
}

func TestResolveImagesRewritesRemoteOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t))
	}))
	defer srv.Close()

	embedded := "data:image/png;base64," + onePixelPNG
	s := &schema.Schema{
		Name:        "t",
		Paper:       "a4",
		Orientation: "portrait",
		Blocks: []schema.Block{
			{ID: "r", Kind: schema.KindImage, Frame: schema.Frame{W: 10, H: 10}, Image: &schema.ImagePayload{Src: srv.URL + "/a.png"}},
			{ID: "e", Kind: schema.KindImage, Frame: schema.Frame{W: 10, H: 10}, Image: &schema.ImagePayload{Src: embedded}},
		},
	}

	f := NewFetcher(Options{Timeout: 5 * time.Second})
	require.NoError(t, f.ResolveImages(context.Background(), s))
	require.True(t, strings.HasPrefix(s.Blocks[0].Image.Src, "data:image/png;base64,"))
	require.Equal(t, embedded, s.Blocks[1].Image.Src)
}
