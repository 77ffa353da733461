// Package linkpreview fetches title, description and image metadata for
// links found in suggestion text.
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Preview describes a link. Only URL is set when the page could not be read.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

const (
	maxPageBytes  = 1 << 20
	maxConcurrent = 8
	maxRedirects  = 3
)

var ErrBlockedAddress = errors.New("link points to a non-public address")

type Fetcher struct {
	client *http.Client
	budget time.Duration
}

// NewFetcher builds a fetcher that only dials public addresses. timeout
// bounds one page; budget bounds a whole EnrichAll call.
func NewFetcher(timeout, budget time.Duration) *Fetcher {
	dialer := &net.Dialer{Timeout: timeout, Control: publicOnly}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return newFetcher(&http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}, budget)
}

func newFetcher(client *http.Client, budget time.Duration) *Fetcher {
	return &Fetcher{client: client, budget: budget}
}

// publicOnly runs after name resolution for every dial, redirects included.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !isPublic(addr.Unmap()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(addr netip.Addr) bool {
	return addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!sharedAddressSpace.Contains(addr)
}

// Fetch downloads rawURL and reads its Open Graph / HTML metadata.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	p := Preview{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return p, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return p, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return p, fmt.Errorf("unexpected content type %q", ct)
	}

	parse(io.LimitReader(resp.Body, maxPageBytes), &p)
	return p, nil
}

func parse(r io.Reader, p *Preview) {
	z := html.NewTokenizer(r)
	var inTitle bool
	var title string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if p.Title == "" {
				p.Title = strings.TrimSpace(title)
			}
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "title":
				inTitle = true
			case "meta":
				applyMeta(tok, p)
			case "body":
				if p.Title == "" {
					p.Title = strings.TrimSpace(title)
				}
				return
			}
		case html.TextToken:
			if inTitle {
				title += string(z.Text())
			}
		case html.EndTagToken:
			if tok := z.Token(); tok.Data == "title" {
				inTitle = false
			}
		}
	}
}

func applyMeta(tok html.Token, p *Preview) {
	var key, content string
	for _, a := range tok.Attr {
		switch a.Key {
		case "property", "name":
			key = strings.ToLower(a.Val)
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	if content == "" {
		return
	}
	switch key {
	case "og:title":
		p.Title = content
	case "og:description":
		p.Description = content
	case "description":
		if p.Description == "" {
			p.Description = content
		}
	case "og:image":
		p.Image = content
	}
}

// ExtractURLs returns the http(s) links in text, in order, without repeats.
func ExtractURLs(text string) []string {
	var urls []string
	seen := map[string]bool{}
	for _, field := range strings.Fields(text) {
		field = strings.TrimRight(field, ".,;:!?)\"'")
		u, err := url.Parse(field)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if !seen[field] {
			seen[field] = true
			urls = append(urls, field)
		}
	}
	return urls
}

// EnrichAll previews the links of every text, sharing one concurrency limit
// and one time budget. A link that cannot be fetched in time still appears,
// with only its URL, and is reported through onError.
func (f *Fetcher) EnrichAll(ctx context.Context, texts []string, onError func(url string, err error)) [][]Preview {
	ctx, cancel := context.WithTimeout(ctx, f.budget)
	defer cancel()

	out := make([][]Preview, len(texts))
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, text := range texts {
		urls := ExtractURLs(text)
		out[i] = make([]Preview, len(urls))
		for j, u := range urls {
			out[i][j] = Preview{URL: u}
			g.Go(func() error {
				p, err := f.Fetch(ctx, u)
				if err != nil {
					if onError != nil {
						onError(u, err)
					}
					return nil
				}
				out[i][j] = p
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}
