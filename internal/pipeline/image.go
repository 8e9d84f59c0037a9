package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/pickgear/backend/pkg/logger"
	"github.com/pickgear/backend/pkg/retry"
)

const (
	cardWidth  = 600
	cardHeight = 400

	maxImageBytes = 10 << 20
)

// cardBackground is the warm off-white the product cards sit on.
var cardBackground = color.NRGBA{R: 253, G: 251, B: 247, A: 255}

// Images downloads product images and normalizes them into uniform
// 600x400 JPEG cards under outputDir. publicPrefix is the URL path the
// frontend serves outputDir from.
type Images struct {
	client       *http.Client
	outputDir    string
	publicPrefix string
	retryCfg     retry.Config
}

func NewImages(outputDir, publicPrefix string) *Images {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	return &Images{
		client:       &http.Client{Timeout: 30 * time.Second},
		outputDir:    outputDir,
		publicPrefix: publicPrefix,
		retryCfg:     cfg,
	}
}

// Process fetches sourceURL, fits it into the card frame and writes
// <outputDir>/<slug>.jpg. Returns the public URL path for the saved file.
func (im *Images) Process(ctx context.Context, sourceURL, slug string) (string, error) {
	data, err := retry.DoWithResult(ctx, im.retryCfg, func() ([]byte, error) {
		return im.download(ctx, sourceURL)
	})
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", sourceURL, err)
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image %s: %w", sourceURL, err)
	}

	// Fit preserves aspect ratio; the remainder is padded with the card
	// background so every product image has identical dimensions.
	fitted := imaging.Fit(src, cardWidth, cardHeight, imaging.Lanczos)
	card := imaging.New(cardWidth, cardHeight, cardBackground)
	card = imaging.PasteCenter(card, fitted)

	if err := os.MkdirAll(im.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	filename := slug + ".jpg"
	outPath := filepath.Join(im.outputDir, filename)
	if err := imaging.Save(card, outPath, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("save image %s: %w", outPath, err)
	}

	logger.Debug("Product image saved", zap.String("slug", slug), zap.String("path", outPath))
	return path.Join(im.publicPrefix, filename), nil
}

func (im *Images) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return data, nil
}
