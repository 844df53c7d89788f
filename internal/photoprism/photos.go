package photoprism

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultThumbSize is large enough for perceptual hashing and much smaller
// than the originals.
const DefaultThumbSize = "fit_720"

// Photo is the subset of PhotoPrism photo fields used for ingestion
type Photo struct {
	UID      string `json:"UID"`
	Hash     string `json:"Hash"`
	Type     string `json:"Type"`
	FileName string `json:"FileName"`
	TakenAt  string `json:"TakenAt"`
}

// ErrStop ends a Walk early without an error
var ErrStop = errors.New("stop walking")

// ListPhotos returns one page of photos matching query, newest first
func (c *Client) ListPhotos(ctx context.Context, count, offset int, query string) ([]Photo, error) {
	params := url.Values{}
	params.Set("count", fmt.Sprint(count))
	params.Set("offset", fmt.Sprint(offset))
	params.Set("order", "newest")
	if query != "" {
		params.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL("photos?"+params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the parsed base URL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var photos []Photo
	if err := json.NewDecoder(resp.Body).Decode(&photos); err != nil {
		return nil, fmt.Errorf("could not decode photos: %w", err)
	}
	return photos, nil
}

// Walk pages through every photo matching query and calls fn for each one.
// Returning ErrStop from fn ends the walk cleanly.
func (c *Client) Walk(ctx context.Context, query string, pageSize int, fn func(Photo) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	for offset := 0; ; offset += pageSize {
		page, err := c.ListPhotos(ctx, pageSize, offset, query)
		if err != nil {
			return fmt.Errorf("list photos at offset %d: %w", offset, err)
		}
		for _, p := range page {
			if err := fn(p); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

// Thumbnail downloads the thumbnail of a photo by its file hash. size is a
// PhotoPrism thumbnail name such as tile_224 or fit_1280.
func (c *Client) Thumbnail(ctx context.Context, hash, size string) ([]byte, error) {
	if hash == "" {
		return nil, errors.New("photo has no file hash")
	}
	if size == "" {
		size = DefaultThumbSize
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL("t", hash, c.downloadToken, size), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the parsed base URL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read thumbnail: %w", err)
	}
	return data, nil
}
