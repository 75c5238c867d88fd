package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	maxPageHeadings = 8
	maxPageCTAs     = 8
	maxPageText     = 160
)

// PageSummary is the landing-page copy handed to the analysis prompt.
type PageSummary struct {
	Title       string
	Description string
	Headings    []string
	CTAs        []string
}

// String renders the summary as prompt text.
func (p *PageSummary) String() string {
	var b strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Meta description: %s\n", p.Description)
	}
	if len(p.Headings) > 0 {
		fmt.Fprintf(&b, "Headings: %s\n", strings.Join(p.Headings, " | "))
	}
	if len(p.CTAs) > 0 {
		fmt.Fprintf(&b, "Calls to action: %s\n", strings.Join(p.CTAs, " | "))
	}
	return strings.TrimSpace(b.String())
}

// PageInspector fetches a landing page and extracts its headline copy.
type PageInspector struct {
	client *resty.Client
}

// NewPageInspector creates a PageInspector.
func NewPageInspector(timeout time.Duration) *PageInspector {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "roastpage/1.0 (+landing-page review)")
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	return &PageInspector{client: client}
}

// Inspect downloads targetURL and summarizes it.
func (p *PageInspector) Inspect(ctx context.Context, targetURL string) (*PageSummary, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("page returned HTTP %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return summarizeDocument(doc), nil
}

func summarizeDocument(doc *goquery.Document) *PageSummary {
	summary := &PageSummary{
		Title: cleanText(doc.Find("title").First().Text()),
	}

	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).Attr("content"); ok {
			if v = cleanText(v); v != "" {
				summary.Description = v
				break
			}
		}
	}

	seen := map[string]bool{}
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := cleanText(s.Text()); t != "" && !seen[t] {
			seen[t] = true
			summary.Headings = append(summary.Headings, t)
		}
		return len(summary.Headings) < maxPageHeadings
	})

	seen = map[string]bool{}
	doc.Find(`button, a[role="button"], a[class*="btn"], a[class*="button"], input[type="submit"]`).
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := cleanText(s.Text())
			if t == "" {
				t, _ = s.Attr("value")
				t = cleanText(t)
			}
			if t != "" && !seen[t] {
				seen[t] = true
				summary.CTAs = append(summary.CTAs, t)
			}
			return len(summary.CTAs) < maxPageCTAs
		})

	return summary
}

// cleanText collapses whitespace and caps the length.
func cleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxPageText {
		s = string(r[:maxPageText]) + "…"
	}
	return s
}
