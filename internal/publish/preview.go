package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPreviewBytes caps how much of a page is parsed for metadata.
const maxPreviewBytes = 1 << 20

// Preview is the article metadata shown on a link post.
type Preview struct {
	Title       string
	Description string
	Image       string
}

// PreviewFetcher reads Open Graph metadata from article pages.
type PreviewFetcher struct {
	http *http.Client
}

// NewPreviewFetcher returns a fetcher using c, or http.DefaultClient when nil.
func NewPreviewFetcher(c *http.Client) *PreviewFetcher {
	if c == nil {
		c = http.DefaultClient
	}
	return &PreviewFetcher{http: c}
}

// Fetch downloads url and extracts og:title, og:description and og:image,
// falling back to <title> and <meta name="description">.
func (f *PreviewFetcher) Fetch(ctx context.Context, url string) (Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.http.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Preview{}, fmt.Errorf("preview: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPreviewBytes))
	if err != nil {
		return Preview{}, err
	}
	return ParsePreview(doc), nil
}

// ParsePreview extracts preview metadata from a parsed document.
func ParsePreview(doc *goquery.Document) Preview {
	meta := func(sel string) string {
		return strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
	}

	p := Preview{
		Title:       meta(`meta[property="og:title"]`),
		Description: meta(`meta[property="og:description"]`),
		Image:       meta(`meta[property="og:image"]`),
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if p.Description == "" {
		p.Description = meta(`meta[name="description"]`)
	}
	return p
}
