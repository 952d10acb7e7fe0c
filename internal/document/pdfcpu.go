package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"finxtract/internal/common"
)

// PDFRenderer extracts page images from image-only PDFs. Scanned documents
// carry exactly one raster per page, which pdfcpu can pull out without any
// external rasterizer.
type PDFRenderer struct {
	logger      *slog.Logger
	parallelism int
}

func NewPDFRenderer(parallelism int, logger *slog.Logger) *PDFRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &PDFRenderer{logger: logger, parallelism: parallelism}
}

// Render produces one Page per physical page, in stable index order.
// A document that yields no pages, or whose page images cannot be read,
// is a rendering fault and surfaces as common.ErrRenderFailed.
func (r *PDFRenderer) Render(ctx context.Context, path string) ([]Page, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		r.logger.Error("render.page_count_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: page count: %v", common.ErrRenderFailed, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: document has no pages", common.ErrRenderFailed)
	}

	tempDir, err := os.MkdirTemp("", "finxtract-render-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", common.ErrRenderFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			r.logger.Warn("render.temp_cleanup_failed", "dir", tempDir, "error", err)
		}
	}()

	pages := make([]Page, pageCount)
	var mu sync.Mutex

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.parallelism)
	for i := 0; i < pageCount; i++ {
		pageNo := i + 1
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pageDir := filepath.Join(tempDir, strconv.Itoa(pageNo))
			if err := os.MkdirAll(pageDir, 0o755); err != nil {
				return fmt.Errorf("page %d: mkdir: %w", pageNo, err)
			}
			if err := api.ExtractImagesFile(path, pageDir, []string{strconv.Itoa(pageNo)}, nil); err != nil {
				return fmt.Errorf("page %d: extract image: %w", pageNo, err)
			}
			img, mime, err := largestImageIn(pageDir)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNo, err)
			}
			mu.Lock()
			pages[pageNo-1] = Page{Index: pageNo - 1, Image: img, MIME: mime}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		r.logger.Error("render.extract_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrRenderFailed, err)
	}

	r.logger.Info("render.ok", "path", path, "pages", pageCount)
	return pages, nil
}

// largestImageIn returns the biggest image file in dir. A scanned page holds
// one full-page raster; any smaller images are stamps or artifacts.
func largestImageIn(dir string) ([]byte, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("read extracted images: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, "", fmt.Errorf("no image extracted (text-layer page?)")
	}
	sort.Strings(names)

	best := ""
	var bestSize int64 = -1
	for _, n := range names {
		info, err := os.Stat(filepath.Join(dir, n))
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestSize = info.Size()
			best = n
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, best))
	if err != nil {
		return nil, "", fmt.Errorf("read page image: %w", err)
	}
	return data, mimeForExt(filepath.Ext(best)), nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
