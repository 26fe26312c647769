package recognizermodule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
)

// matchResponse is the recognition service's wire format. A null match is
// the "no match" sentinel, not an error.
type matchResponse struct {
	Match *struct {
		Title      string  `json:"title"`
		Artist     string  `json:"artist"`
		MatchID    string  `json:"match_id"`
		Confidence float64 `json:"confidence"`
		ArtworkURL string  `json:"artwork_url"`
	} `json:"match"`
}

// Recognizer identifies tracks from short audio samples through an
// external acoustic-matching service.
type Recognizer struct {
	cfg    config.RecognitionConfig
	client *http.Client
}

// NewRecognizer creates a recognizer from configuration.
func NewRecognizer(cfg config.RecognitionConfig) *Recognizer {
	return &Recognizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Recognize submits the clip and returns the identified track, or nil when
// the service reports no match. Recognition is a single best-effort attempt:
// the acoustic signal does not change between retries, so there is no retry
// budget here.
func (r *Recognizer) Recognize(ctx context.Context, clip *types.NormalizedClip) (*types.TrackIdentity, error) {
	body, contentType, err := buildClipForm(clip)
	if err != nil {
		return nil, errors.NewInternalError("failed to read clip", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint+"/recognize", body)
	if err != nil {
		return nil, errors.NewInternalError("failed to build recognition request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewRecognitionUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewRecognitionUnavailable(fmt.Errorf("recognition service returned status %d", resp.StatusCode))
	}

	var parsed matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewRecognitionUnavailable(fmt.Errorf("malformed recognition response: %w", err))
	}

	if parsed.Match == nil {
		return nil, nil
	}

	if r.cfg.ConfidenceFloor > 0 && parsed.Match.Confidence < r.cfg.ConfidenceFloor {
		logger.Info("discarding low-confidence match", []logger.Field{
			logger.String("title", parsed.Match.Title),
			logger.String("confidence", fmt.Sprintf("%.2f", parsed.Match.Confidence)),
		})
		return nil, nil
	}

	return &types.TrackIdentity{
		Title:           parsed.Match.Title,
		Artist:          parsed.Match.Artist,
		ExternalMatchID: parsed.Match.MatchID,
		Confidence:      parsed.Match.Confidence,
		ArtworkURL:      parsed.Match.ArtworkURL,
	}, nil
}

func buildClipForm(clip *types.NormalizedClip) (io.Reader, string, error) {
	f, err := os.Open(clip.FilePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("sample", "clip.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
