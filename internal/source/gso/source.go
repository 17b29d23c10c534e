// Package gso collects funding posts from Global South Opportunities. The
// site paginates its funding category and shows relative publication dates
// ("2 weeks ago") in listings, so candidate filtering happens on the listing
// page before any detail page is fetched.
package gso

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"fundwatch/internal/dates"
	"fundwatch/internal/domain"
	"fundwatch/internal/fetch"
)

const (
	SourceID   = "gso"
	SourceName = "Global South Opportunities"
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
		baseURL:  cfg.BaseURL,
		maxPages: maxPages,
		logger:   logger.With("source", SourceID),
	}
}

func (s *Source) ID() string   { return SourceID }
func (s *Source) Name() string { return SourceName }

// listingEntry is one post on a category page before detail scraping.
type listingEntry struct {
	link        string
	publishedAt time.Time
}

func (s *Source) FetchCandidates(ctx context.Context, cutoff time.Time) ([]domain.Candidate, error) {
	entries, err := s.collectListings(ctx, cutoff)
	if err != nil {
		return nil, err
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

func (s *Source) collectListings(ctx context.Context, cutoff time.Time) ([]listingEntry, error) {
	var entries []listingEntry

	pageURL := s.baseURL
	for page := 1; page <= s.maxPages && pageURL != ""; page++ {
		body, err := s.client.Get(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch listing page: %w", err)
			}
			s.logger.Warn("listing page failed, stopping pagination", "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse listing page: %w", err)
		}

		posts := doc.Find("ul#posts-container li.post-item")
		if posts.Length() == 0 {
			s.logger.Warn("no posts on listing page, stopping pagination", "page", page)
			break
		}

		posts.Each(func(_ int, post *goquery.Selection) {
			href, ok := post.Find("a.more-link").Attr("href")
			if !ok || href == "" {
				return
			}
			dateText := strings.TrimSpace(post.Find("span.date").Text())

			res := dates.Normalize(dateText, time.Now())
			if res.Kind != dates.Date {
				s.logger.Warn("unparseable listing date", "link", href, "date", dateText)
				return
			}
			if res.Date.Before(cutoff) {
				return
			}
			entries = append(entries, listingEntry{link: href, publishedAt: res.Date})
		})

		s.logger.Debug("listing page collected", "page", page, "entries", len(entries))

		pageURL, _ = doc.Find("span.last-page > a").Attr("href")
	}

	return entries, nil
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
		return domain.Candidate{}, fmt.Errorf("no title on detail page")
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
