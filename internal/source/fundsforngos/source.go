// Package fundsforngos collects grant posts from the fundsforNGOs RSS feed.
// The feed carries titles, links and publication dates; the article body is
// extracted from each detail page with a readability pass, which tolerates
// the site's frequent template changes.
package fundsforngos

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"fundwatch/internal/domain"
	"fundwatch/internal/fetch"
)

const (
	SourceID   = "fundsforngos"
	SourceName = "fundsforNGOs"
)

type Config struct {
	FeedURL string
}

type Source struct {
	client  *fetch.Client
	feedURL string
	parser  *gofeed.Parser
	logger  *slog.Logger
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	return &Source{
		client:  client,
		feedURL: cfg.FeedURL,
		parser:  gofeed.NewParser(),
		logger:  logger.With("source", SourceID),
	}
}

func (s *Source) ID() string   { return SourceID }
func (s *Source) Name() string { return SourceName }

func (s *Source) FetchCandidates(ctx context.Context, cutoff time.Time) ([]domain.Candidate, error) {
	body, err := s.client.Get(ctx, s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		if item.PublishedParsed == nil {
			s.logger.Warn("feed item without date", "link", item.Link)
			continue
		}
		if item.PublishedParsed.Before(cutoff) {
			continue
		}

		text, err := s.extractText(ctx, item.Link)
		if err != nil {
			s.logger.Warn("detail page failed", "link", item.Link, "error", err)
			continue
		}

		publishedAt := *item.PublishedParsed
		candidates = append(candidates, domain.Candidate{
			Link:        item.Link,
			Title:       strings.TrimSpace(item.Title),
			SourceName:  SourceName,
			Text:        text,
			PublishedAt: &publishedAt,
		})
	}

	s.logger.Debug("feed collected", "items", len(feed.Items), "candidates", len(candidates))
	return candidates, nil
}

func (s *Source) extractText(ctx context.Context, link string) (string, error) {
	body, err := s.client.Get(ctx, link)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no readable content")
	}
	return text, nil
}
