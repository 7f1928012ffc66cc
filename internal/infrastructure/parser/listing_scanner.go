package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"OpportunityScout/internal/config"
	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/scanner"
)

const (
	keywordPlaceholder = "{keyword}"
	defaultUserAgent   = "OpportunityScout/1.0"
)

var priceExpr = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ListingScanner reads one platform's search results page and extracts
// products with CSS selectors.
type ListingScanner struct {
	platform  string
	searchURL string
	userAgent string
	headers   map[string]string
	sel       config.SelectorConfig
	client    *http.Client
}

var _ scanner.PlatformScanner = (*ListingScanner)(nil)

// NewListingScanner validates the platform definition; a nil client gets a
// 20s timeout.
func NewListingScanner(def config.PlatformConfig, client *http.Client) (*ListingScanner, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, fmt.Errorf("platform name is required")
	}
	if !strings.Contains(def.SearchURL, keywordPlaceholder) {
		return nil, fmt.Errorf("platform %s: searchUrl must contain %s", name, keywordPlaceholder)
	}
	if def.Selectors.Item == "" || def.Selectors.Price == "" {
		return nil, fmt.Errorf("platform %s: item and price selectors are required", name)
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	ua := def.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &ListingScanner{
		platform:  name,
		searchURL: def.SearchURL,
		userAgent: ua,
		headers:   def.Headers,
		sel:       def.Selectors,
		client:    client,
	}, nil
}

// Platform identifies the scanner inside the registry.
func (s *ListingScanner) Platform() string {
	return s.platform
}

// Scan fetches the results page for keyword and returns at most maxResults
// products in page order. Entries without a readable price are dropped.
func (s *ListingScanner) Scan(ctx context.Context, _ string, keyword string, maxResults int) ([]domain.Product, error) {
	pageURL := buildSearchURL(s.searchURL, keyword)
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search url %s: %w", pageURL, err)
	}

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", s.platform, err)
	}

	products := make([]domain.Product, 0)
	doc.Find(s.sel.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if maxResults > 0 && len(products) >= maxResults {
			return false
		}
		p, ok := s.parseItem(item, base)
		if ok {
			products = append(products, p)
		}
		return true
	})

	return products, nil
}

func (s *ListingScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *ListingScanner) parseItem(item *goquery.Selection, base *url.URL) (domain.Product, bool) {
	price, ok := parsePrice(text(item, s.sel.Price))
	if !ok {
		return domain.Product{}, false
	}

	link := resolve(base, attr(item, s.sel.Link, "href"))
	name := text(item, s.sel.Name)
	if name == "" && s.sel.Link != "" {
		name = strings.TrimSpace(item.Find(s.sel.Link).First().Text())
	}

	id := ""
	if s.sel.IDAttr != "" {
		id, _ = item.Attr(s.sel.IDAttr)
		id = strings.TrimSpace(id)
	}
	if id == "" {
		id = link
	}

	image := attr(item, s.sel.Image, "src")
	if image == "" {
		image = attr(item, s.sel.Image, "data-src")
	}

	return domain.Product{
		ProductID: id,
		Name:      name,
		Price:     price,
		URL:       link,
		ImageURL:  resolve(base, image),
		Category:  text(item, s.sel.Category),
		Brand:     text(item, s.sel.Brand),
		Platform:  s.platform,
	}, true
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

func attr(item *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	v, _ := item.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// parsePrice reads the first number in a price label such as "$1,299.99" or
// "Now 12.50 USD".
func parsePrice(raw string) (float64, bool) {
	match := priceExpr.FindString(raw)
	if match == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func buildSearchURL(template, keyword string) string {
	return strings.ReplaceAll(template, keywordPlaceholder, url.QueryEscape(strings.TrimSpace(keyword)))
}
