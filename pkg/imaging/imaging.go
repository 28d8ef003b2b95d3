// Package imaging downloads message attachments and prepares them for
// re-upload on the other platform.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/webp"

	"github.com/Autuamn/dcqg-relay/pkg/relay"
)

const maxDownloadBytes = 25 << 20 // Discord's upload cap

// Service fetches attachment bytes over HTTP, optionally through a proxy,
// and converts formats the target platform cannot render.
type Service struct {
	client *http.Client
}

// New builds a Service. proxyURL may be empty; when set it is applied to all
// attachment downloads (http, https or socks5 schemes).
func New(proxyURL string) (*Service, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &Service{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// Fetch downloads the attachment at url. Network-level failures and 5xx
// responses are transient; 4xx responses are permanent.
func (s *Service) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, relay.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, relay.Transient(fmt.Errorf("GET %s: %s", rawURL, resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, relay.Transient(err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("GET %s: attachment exceeds %d bytes", rawURL, maxDownloadBytes)
	}
	return data, nil
}

// DiscordFile wraps downloaded bytes as a webhook upload. The filename keeps
// the source URL's base name where it has a usable extension, otherwise one is
// sniffed from the content.
func (s *Service) DiscordFile(rawURL string, data []byte) relay.File {
	mtype := mimetype.Detect(data)

	name := "attachment" + mtype.Extension()
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			name = base
		}
	}

	return relay.File{
		Name:        name,
		ContentType: mtype.String(),
		Data:        data,
	}
}

// PrepareForQQ transcodes webp images, which QQ cannot render, to PNG.
// Everything else passes through untouched.
func (s *Service) PrepareForQQ(data []byte) ([]byte, error) {
	if !mimetype.Detect(data).Is("image/webp") {
		return data, nil
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding webp: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
