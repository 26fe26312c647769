package downloadmodule

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
)

// ArtworkFetcher downloads cover art for a recognized track and stores a
// webp thumbnail alongside the audio artifact. Artwork is decorative;
// every failure here is non-fatal.
type ArtworkFetcher struct {
	enabled bool
	client  *http.Client
	quality float32
}

// NewArtworkFetcher creates a fetcher with a short, independent timeout.
func NewArtworkFetcher(enabled bool) *ArtworkFetcher {
	return &ArtworkFetcher{
		enabled: enabled,
		client:  &http.Client{Timeout: 10 * time.Second},
		quality: 80,
	}
}

// FetchThumbnail downloads the image at url, re-encodes it as webp, and
// writes it into destDir. Returns the written file's path.
func (f *ArtworkFetcher) FetchThumbnail(ctx context.Context, url, destDir string) (string, error) {
	if !f.enabled {
		return "", fmt.Errorf("artwork fetching is disabled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork fetch returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("decode artwork: %w", err)
	}

	outPath := filepath.Join(destDir, "artwork.webp")
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := webp.Encode(out, img, &webp.Options{Quality: f.quality}); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("encode artwork: %w", err)
	}
	return outPath, nil
}
