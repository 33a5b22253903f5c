// Package media downloads rendition binaries referenced by ingested items and
// records their content addresses. Binary storage itself is delegated to a
// Store implementation.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// Store persists downloaded binaries under a content-derived id.
type Store interface {
	Put(ctx context.Context, id string, mimeType string, data []byte) error
}

// Transferrer implements ingest.MediaTransferrer over HTTP.
type Transferrer struct {
	httpClient *http.Client
	store      Store
	userAgent  string
	timeout    time.Duration
}

var _ ingest.MediaTransferrer = (*Transferrer)(nil)

func NewTransferrer(httpClient *http.Client, store Store, userAgent string) *Transferrer {
	return &Transferrer{
		httpClient: httpClient,
		store:      store,
		userAgent:  userAgent,
		timeout:    30 * time.Second,
	}
}

// UpdateRenditions fetches the primary rendition from href and rewrites the
// item's rendition set. When the previous version of the item already holds
// media for the same href, the stored media is reused and no download happens.
func (t *Transferrer) UpdateRenditions(ctx context.Context, item *ingest.Item, href string, old *ingest.Item) error {
	if old != nil {
		if _, oldBase, ok := old.BaseRendition(); ok && oldBase.Href == href && oldBase.Media != "" {
			item.Renditions = make(map[string]ingest.Rendition, len(old.Renditions))
			for name, rendition := range old.Renditions {
				item.Renditions[name] = rendition
			}
			slog.Debug("Reusing stored renditions", "guid", item.GUID, "media", oldBase.Media)
			return nil
		}
	}

	_, base, ok := item.BaseRendition()
	if !ok {
		return fmt.Errorf("item %s has no base rendition", item.GUID)
	}

	media, err := t.download(ctx, href, base.MimeType)
	if err != nil {
		return fmt.Errorf("failed to update renditions for %s: %w", item.GUID, err)
	}

	updated := base
	updated.Href = href
	updated.Media = media
	if item.Renditions == nil {
		item.Renditions = map[string]ingest.Rendition{}
	}
	for _, name := range append([]string{"original"}, ingest.SystemRenditions...) {
		rendition, ok := item.Renditions[name]
		if !ok {
			item.Renditions[name] = updated
			continue
		}
		rendition.Media = media
		rendition.Href = href
		item.Renditions[name] = rendition
	}

	return nil
}

// TransferRenditions downloads every rendition that carries an href but no
// media yet, writing the media id back into the map.
func (t *Transferrer) TransferRenditions(ctx context.Context, renditions map[string]ingest.Rendition) error {
	for name, rendition := range renditions {
		if rendition.Media != "" || rendition.Href == "" {
			continue
		}
		media, err := t.download(ctx, rendition.Href, rendition.MimeType)
		if err != nil {
			return fmt.Errorf("failed to transfer rendition %s: %w", name, err)
		}
		rendition.Media = media
		renditions[name] = rendition
	}
	return nil
}

func (t *Transferrer) download(ctx context.Context, href, mimeType string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", href, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", href, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, href)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", href, err)
	}

	hash := sha1.Sum(data)
	media := hex.EncodeToString(hash[:])

	if t.store != nil {
		if err := t.store.Put(ctx, media, mimeType, data); err != nil {
			return "", fmt.Errorf("failed to store media %s: %w", media, err)
		}
	}

	return media, nil
}
