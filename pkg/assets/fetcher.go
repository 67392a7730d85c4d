// Package assets rewrites remote image sources in a schema to embedded data
// URIs, which is what the PDF renderer requires. Fetches are cached by URL
// and rate limited per host so batch runs hit each asset once.
package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/vello/vello/pkg/cache"
	"github.com/vello/vello/pkg/ratelimit"
	"github.com/vello/vello/pkg/render"
	"github.com/vello/vello/pkg/schema"
)

const defaultMaxBytes = 8 << 20 // 8 MiB embed cap

type Fetcher struct {
	client   *resty.Client
	cache    *cache.AssetCache
	limiter  *ratelimit.Manager
	maxBytes int64
}

type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	MaxBytes int64
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Fetcher{
		client:   client,
		cache:    cache.NewAssetCache(opts.CacheTTL),
		limiter:  ratelimit.NewManager(),
		maxBytes: opts.MaxBytes,
	}
}

// FetchDataURI downloads a remote image and returns it as a data: URI.
func (f *Fetcher) FetchDataURI(ctx context.Context, src string) (string, error) {
	if uri, ok := f.cache.Get(src); ok {
		return uri, nil
	}

	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("unsupported image source: %q", src)
	}
	if err := f.limiter.Wait(ctx, "fetch:"+u.Host); err != nil {
		return "", err
	}

	resp, err := f.client.R().SetContext(ctx).Get(src)
	if err != nil {
		return "", errors.Wrapf(err, "fetch image %s", src)
	}
	if !resp.IsSuccess() {
		return "", errors.Errorf("fetch image %s: http %d", src, resp.StatusCode())
	}
	body := resp.Body()
	if int64(len(body)) > f.maxBytes {
		return "", errors.Errorf("fetch image %s: %d bytes exceeds embed cap %d", src, len(body), f.maxBytes)
	}

	mime := sniffImageMime(body, resp.Header().Get("Content-Type"))
	if mime == "" {
		return "", errors.Errorf("fetch image %s: unsupported content type", src)
	}

	uri := render.EncodeDataURI(mime, body)
	f.cache.Set(src, uri)
	return uri, nil
}

// ResolveImages walks a schema and rewrites every remote image source to a
// data URI in place. Call on a clone when the original must stay pristine.
func (f *Fetcher) ResolveImages(ctx context.Context, s *schema.Schema) error {
	return s.Walk(func(b *schema.Block) error {
		if b.Kind != schema.KindImage {
			return nil
		}
		src := strings.TrimSpace(b.Image.Src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return nil
		}
		uri, err := f.FetchDataURI(ctx, src)
		if err != nil {
			return err
		}
		b.Image.Src = uri
		return nil
	})
}

// sniffImageMime trusts magic bytes over the response header.
func sniffImageMime(body []byte, contentType string) string {
	switch http.DetectContentType(body) {
	case "image/png":
		return "image/png"
	case "image/jpeg":
		return "image/jpeg"
	case "image/gif":
		return "image/gif"
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "image/png", "image/jpeg", "image/gif":
		return ct
	}
	return ""
}
