//go:build tesseract

package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/render"
)

// rasterDPI is used for PDF pages when no image DPI is configured.
const rasterDPI = 300

// TesseractEngine recognizes documents locally with Tesseract. PDF pages
// are rasterized and recognized concurrently, at most Params.Jobs at a time.
type TesseractEngine struct {
	renderer      *render.Renderer
	rasterizer    render.Rasterizer
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
}

// NewTesseractEngine creates a local engine.
func NewTesseractEngine(renderer *render.Renderer, rasterizer render.Rasterizer, logger *slog.Logger) (*TesseractEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rasterizer == nil {
		rasterizer = render.FitzRasterizer{}
	}
	if renderer == nil {
		renderer = render.NewRenderer(rasterizer, logger)
	}
	return &TesseractEngine{
		renderer:      renderer,
		rasterizer:    rasterizer,
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}, nil
}

// Run implements Engine.
func (e *TesseractEngine) Run(ctx context.Context, p Params) (*ocrapi.Artifacts, error) {
	if err := preflight(p); err != nil {
		return nil, err
	}

	var (
		result *ocrapi.Result
		err    error
	)
	if p.IsImage {
		result, err = e.recognizeImage(ctx, p)
	} else {
		result, err = e.recognizePDF(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	err = e.renderer.Render(ctx, render.Request{
		InputPath:   p.InputPath,
		IsImage:     p.IsImage,
		OutputPath:  p.OutputPath,
		SidecarPath: p.SidecarPath,
		Result:      result,
	})
	if err != nil {
		return nil, err
	}
	return &ocrapi.Artifacts{Result: result}, nil
}

func (e *TesseractEngine) recognizeImage(ctx context.Context, p Params) (*ocrapi.Result, error) {
	img, err := imaging.Open(p.InputPath)
	if err != nil {
		return nil, &InputFileError{Path: p.InputPath, Err: err}
	}
	page, text, err := e.recognizePage(ctx, img, p)
	if err != nil {
		return nil, err
	}
	return joinPages([]ocrapi.Page{page}, []string{text}), nil
}

func (e *TesseractEngine) recognizePDF(ctx context.Context, p Params) (*ocrapi.Result, error) {
	doc, err := e.rasterizer.Open(p.InputPath)
	if err != nil {
		return nil, &InputFileError{Path: p.InputPath, Err: err}
	}
	defer func() { _ = doc.Close() }()

	n := doc.NumPage()
	if limit := p.PageLimit(); limit > 0 && limit < n {
		n = limit
	}
	dpi := float64(rasterDPI)
	if p.ImageDPI > 0 {
		dpi = float64(p.ImageDPI)
	}

	pages := make([]ocrapi.Page, n)
	texts := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Jobs, 1))
	for i := range n {
		g.Go(func() error {
			img, err := doc.Image(i, dpi)
			if err != nil {
				return err
			}
			page, text, err := e.recognizePage(gctx, img, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i], texts[i] = page, text
			e.logger.Debug("Recognized page", slog.Int("page", i+1), slog.Int("chars", len(text)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return joinPages(pages, texts), nil
}

func (e *TesseractEngine) recognizePage(ctx context.Context, img image.Image, p Params) (ocrapi.Page, string, error) {
	if err := ctx.Err(); err != nil {
		return ocrapi.Page{}, "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return ocrapi.Page{}, "", fmt.Errorf("encode page image: %w", err)
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if p.Language != "" {
		if err := c.SetLanguage(strings.Split(p.Language, "+")...); err != nil {
			return ocrapi.Page{}, "", fmt.Errorf("set languages: %w", err)
		}
	}
	if p.ImageDPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(p.ImageDPI)); err != nil {
			return ocrapi.Page{}, "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return ocrapi.Page{}, "", fmt.Errorf("set image: %w", err)
	}

	found, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return ocrapi.Page{}, "", fmt.Errorf("recognize text: %w", err)
	}
	boxes := make([]wordBox, 0, len(found))
	for _, b := range found {
		boxes = append(boxes, wordBox{Block: b.BlockNum, Par: b.ParNum, Line: b.LineNum, Word: b.Word, Box: b.Box})
	}

	bounds := img.Bounds()
	page, text := pageLayout(boxes, bounds.Dx(), bounds.Dy())
	return page, text, nil
}
