// Package web provides a web page operator that fetches URLs and
// extracts readable text.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// maxBodyBytes caps downloaded page size.
const maxBodyBytes = 5 * 1024 * 1024

// Page is the readable content of one fetched page.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Operator fetches pages over HTTP. Register it as a static operator.
type Operator struct {
	client *http.Client
}

// New creates a web operator with a bounded-timeout client.
func New() *Operator {
	return &Operator{client: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch downloads a URL and returns its readable article content.
func (o *Operator) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return Page{}, fmt.Errorf("unsupported URL %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return Page{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	return Page{
		URL:     rawURL,
		Title:   article.Title,
		Content: strings.TrimSpace(article.TextContent),
	}, nil
}
