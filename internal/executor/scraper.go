package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	maxPageSize    = 5 * 1024 * 1024
	defaultTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// PageFetcher returns the HTML of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets a 30s timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxPageSize {
		return "", fmt.Errorf("response too large (exceeds 5MB limit)")
	}
	return string(body), nil
}

func (f *HTTPFetcher) Close() error { return nil }

// Scraper collects the links of a page into the knowledge directory.
type Scraper struct {
	dir     string
	fetcher PageFetcher
	now     func() time.Time
}

// NewScraper creates a scraper writing to dir.
func NewScraper(dir string, fetcher PageFetcher) *Scraper {
	return &Scraper{dir: dir, fetcher: fetcher, now: time.Now}
}

// Scrape fetches domain, keeps every link whose href starts with subdomain
// (all links when subdomain is empty), and writes them as a JSON list.
// Root-relative hrefs are prefixed with the domain. It returns the path of
// the written file. A markdown rendering of the page is written beside it.
func (s *Scraper) Scrape(ctx context.Context, domain, subdomain string) (string, error) {
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "http://" + domain
	}
	parsed, err := url.Parse(domain)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid domain %q", domain)
	}

	html, err := s.fetcher.Fetch(ctx, domain)
	if err != nil {
		return "", err
	}

	links, err := ExtractLinks(html, domain, subdomain)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create knowledge directory: %w", err)
	}
	path := filepath.Join(s.dir, KnowledgeFileName(parsed, s.now()))

	var g errgroup.Group
	g.Go(func() error {
		data, err := json.MarshalIndent(links, "", "    ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	})
	g.Go(func() error {
		markdown, err := convertHTMLToMarkdown(html)
		if err != nil {
			return err
		}
		return os.WriteFile(strings.TrimSuffix(path, ".json")+".md", []byte(markdown), 0644)
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("write knowledge: %w", err)
	}

	return path, nil
}

// Close releases the fetcher.
func (s *Scraper) Close() error {
	return s.fetcher.Close()
}

// ExtractLinks returns the href of every anchor in html, in document order.
func ExtractLinks(html, domain, subdomain string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	links := []string{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if subdomain != "" && !strings.HasPrefix(href, subdomain) {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = domain + href
		}
		links = append(links, href)
	})
	return links, nil
}

// KnowledgeFileName builds "<host>[_<path>]_<dd_mm_yyyy>.json" with dots in
// the host and slashes in the path replaced by underscores.
func KnowledgeFileName(u *url.URL, at time.Time) string {
	name := strings.ReplaceAll(u.Host, ".", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if path := strings.Trim(u.Path, "/"); path != "" {
		name += "_" + strings.ReplaceAll(path, "/", "_")
	}
	return name + "_" + at.Format("02_01_2006") + ".json"
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
