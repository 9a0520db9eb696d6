package images

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couriermsg/courier/internal/messaging"
)

// ClientSource resolves the process-wide messaging client. The attachment
// fetcher waits on it per load, so a pipeline created before client
// construction finishes still works.
type ClientSource interface {
	AwaitClient(ctx context.Context) (messaging.Client, error)
}

// AttachmentFetcher serves attachment:// URLs from the messaging client.
// The attachment ID is the URL with the scheme stripped.
type AttachmentFetcher struct {
	clients ClientSource
}

// NewAttachmentFetcher creates a fetcher backed by the given client source.
func NewAttachmentFetcher(clients ClientSource) *AttachmentFetcher {
	return &AttachmentFetcher{clients: clients}
}

// Fetch implements Fetcher.
func (f *AttachmentFetcher) Fetch(ctx context.Context, u *url.URL) (Image, error) {
	client, err := f.clients.AwaitClient(ctx)
	if err != nil {
		return Image{}, err
	}
	if client == nil {
		return Image{}, fmt.Errorf("cannot fetch %q: no messaging client available", u)
	}

	id := u.Opaque
	if id == "" {
		id = strings.TrimPrefix(u.Path, "/")
		if u.Host != "" {
			id = u.Host + "/" + id
		}
	}

	rc, err := client.Attachment(ctx, id)
	if err != nil {
		return Image{}, fmt.Errorf("failed to open attachment %q: %w", id, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read attachment %q: %w", id, err)
	}
	return Image{Data: data}, nil
}

// HTTPFetcher serves http:// and https:// URLs.
type HTTPFetcher struct {
	http *resty.Client
}

// NewHTTPFetcher creates a fetcher with its own HTTP client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		http: resty.New().SetTimeout(30 * time.Second),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (Image, error) {
	resp, err := f.http.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return Image{}, fmt.Errorf("image request: %w", err)
	}
	if resp.IsError() {
		return Image{}, fmt.Errorf("image request for %q returned status %d", u, resp.StatusCode())
	}
	return Image{
		Data:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}
