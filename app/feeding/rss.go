package feeding

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

const rssBatchSize = 100

// RSSService pulls RSS/Atom feeds and maps their entries onto ingest items.
type RSSService struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

func NewRSSService(httpClient *http.Client, userAgent string) *RSSService {
	return &RSSService{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

func (s *RSSService) Update(ctx context.Context, provider *ingest.Provider, settings *config.ServiceSettings, run *ingest.ProviderRunUpdate) (Cursor, error) {
	if settings == nil || settings.URL == "" {
		return nil, fmt.Errorf("provider %q has no feed URL configured", provider.Name)
	}

	data, err := s.fetch(ctx, settings.URL, settings.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	parsed, err := s.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]*ingest.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item := s.normalizeEntry(entry, provider)
		if provider.LastUpdated != nil && item.VersionCreated != nil &&
			!item.VersionCreated.After(*provider.LastUpdated) {
			continue
		}
		if settings.ExtractContent && item.BodyHTML == "" && item.URI != "" {
			s.extractContent(ctx, item, settings.Timeout)
		}
		items = append(items, item)
	}

	batches := make([][]*ingest.Item, 0, len(items)/rssBatchSize+1)
	for start := 0; start < len(items); start += rssBatchSize {
		end := min(start+rssBatchSize, len(items))
		batches = append(batches, items[start:end])
	}

	slog.Debug("Feed fetched",
		"provider", provider.Name,
		"total", len(parsed.Items),
		"new", len(items))

	return NewBatchCursor(batches...), nil
}

// PrepareHref returns the enclosure URL unchanged; RSS media links are
// already absolute and need no signing.
func (s *RSSService) PrepareHref(href, mimetype string) string {
	return href
}

func (s *RSSService) normalizeEntry(entry *gofeed.Item, provider *ingest.Provider) *ingest.Item {
	item := &ingest.Item{
		GUID:     cmp.Or(entry.GUID, entry.Link),
		Type:     ingest.TypeText,
		URI:      entry.Link,
		Source:   cmp.Or(provider.Source, provider.Name),
		Headline: entry.Title,
		BodyHTML: cmp.Or(entry.Content, entry.Description),
	}

	if entry.PublishedParsed != nil {
		published := entry.PublishedParsed.UTC()
		item.FirstCreated = &published
		item.VersionCreated = &published
	}
	if entry.UpdatedParsed != nil {
		updated := entry.UpdatedParsed.UTC()
		item.VersionCreated = &updated
	}

	for _, category := range entry.Categories {
		item.Subject = append(item.Subject, ingest.Subject{
			QCode: category,
			Name:  category,
		})
	}

	if len(entry.Enclosures) > 0 && entry.Enclosures[0] != nil {
		enclosure := entry.Enclosures[0]
		if strings.HasPrefix(enclosure.Type, "image/") {
			item.Renditions = map[string]ingest.Rendition{
				"baseImage": {
					Href:     enclosure.URL,
					MimeType: enclosure.Type,
				},
			}
		}
	}

	return item
}

func (s *RSSService) extractContent(ctx context.Context, item *ingest.Item, timeout int) {
	data, err := s.fetch(ctx, item.URI, timeout)
	if err != nil {
		slog.Debug("Failed to fetch page for content extraction",
			"guid", item.GUID, "error", err)
		return
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), nil)
	if err != nil || article.Content == "" {
		slog.Debug("Failed to extract content", "guid", item.GUID, "error", err)
		return
	}

	item.BodyHTML = article.Content
}

func (s *RSSService) fetch(ctx context.Context, url string, timeout int) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}
