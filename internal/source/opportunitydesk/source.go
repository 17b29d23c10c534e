// Package opportunitydesk collects grant posts from Opportunity Desk. Pages
// follow the /page/N/ convention and listings carry absolute dates; the last
// page is detected by the next page request failing.
package opportunitydesk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"fundwatch/internal/domain"
	"fundwatch/internal/fetch"
)

const (
	SourceID   = "opportunitydesk"
	SourceName = "Opportunity Desk"
)

type Config struct {
	BaseURL  string
	MaxPages int
}

type Source struct {
	client   *fetch.Client
	baseURL  string
	maxPages int
	logger   *slog.Logger
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 10
	}
	return &Source{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/") + "/",
		maxPages: maxPages,
		logger:   logger.With("source", SourceID),
	}
}

func (s *Source) ID() string   { return SourceID }
func (s *Source) Name() string { return SourceName }

type listingEntry struct {
	link        string
	publishedAt time.Time
}

func (s *Source) FetchCandidates(ctx context.Context, cutoff time.Time) ([]domain.Candidate, error) {
	var entries []listingEntry

	for page := 1; page <= s.maxPages; page++ {
		pageURL := s.baseURL
		if page > 1 {
			pageURL = fmt.Sprintf("%spage/%d/", s.baseURL, page)
		}

		body, err := s.client.Get(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch listing page: %w", err)
			}
			// Pagination past the last page 404s.
			s.logger.Debug("pagination ended", "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse listing page: %w", err)
		}

		articles := doc.Find("article.l-post")
		if articles.Length() == 0 {
			break
		}

		articles.Each(func(_ int, article *goquery.Selection) {
			href, ok := article.Find("h2.post-title > a").Attr("href")
			if !ok || href == "" {
				return
			}
			dateText := strings.TrimSpace(article.Find("time.post-date").Text())

			publishedAt, err := dateparse.ParseAny(dateText)
			if err != nil {
				s.logger.Warn("unparseable listing date", "link", href, "date", dateText)
				return
			}
			if publishedAt.Before(cutoff) {
				return
			}
			entries = append(entries, listingEntry{link: href, publishedAt: publishedAt})
		})
	}

	candidates := make([]domain.Candidate, 0, len(entries))
	for _, entry := range entries {
		cand, err := s.scrapeDetail(ctx, entry)
		if err != nil {
			s.logger.Warn("detail page failed", "link", entry.link, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (s *Source) scrapeDetail(ctx context.Context, entry listingEntry) (domain.Candidate, error) {
	body, err := s.client.Get(ctx, entry.link)
	if err != nil {
		return domain.Candidate{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("parse detail page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1.entry-title").First().Text())
	if title == "" {
		// The site occasionally ships posts without an H1; the URL slug is
		// still a usable title.
		title = titleFromSlug(entry.link)
	}

	text := strings.TrimSpace(doc.Find("div.entry-content").First().Text())
	if text == "" {
		return domain.Candidate{}, fmt.Errorf("no content on detail page")
	}

	publishedAt := entry.publishedAt
	return domain.Candidate{
		Link:        entry.link,
		Title:       title,
		SourceName:  SourceName,
		Text:        text,
		PublishedAt: &publishedAt,
	}, nil
}

func titleFromSlug(link string) string {
	slug := strings.TrimRight(link, "/")
	if i := strings.LastIndex(slug, "/"); i >= 0 {
		slug = slug[i+1:]
	}
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
