package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/goregular"
	_ "golang.org/x/image/webp" // register WebP decoder for image.Decode

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
)

const fontFamily = "goregular"

// RenderError reports a failure to produce the archive PDF.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Request describes one archive to render.
type Request struct {
	InputPath   string
	IsImage     bool
	OutputPath  string
	SidecarPath string
	Result      *ocrapi.Result
}

// Renderer writes searchable archive PDFs: the recognized text is laid out
// on each page and the page image is drawn over it.
type Renderer struct {
	rasterizer Rasterizer
	logger     *slog.Logger
}

// NewRenderer creates a renderer. A nil rasterizer defaults to MuPDF.
func NewRenderer(r Rasterizer, logger *slog.Logger) *Renderer {
	if r == nil {
		r = FitzRasterizer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{rasterizer: r, logger: logger}
}

// Render writes the sidecar text file and the archive PDF.
func (r *Renderer) Render(ctx context.Context, req Request) error {
	content := ""
	if req.Result != nil {
		content = req.Result.Content
	}
	if req.SidecarPath != "" {
		if err := os.WriteFile(req.SidecarPath, []byte(content), 0o600); err != nil {
			return &RenderError{Op: "sidecar", Err: err}
		}
	}

	if req.IsImage {
		return r.renderImage(req)
	}

	if req.Result == nil || len(req.Result.Pages) == 0 {
		r.logger.Debug("No OCR layout, copying input as archive", slog.String("input", req.InputPath))
		if err := copyFile(req.InputPath, req.OutputPath); err != nil {
			return &RenderError{Op: "copy", Err: err}
		}
		return nil
	}
	return r.renderPDF(ctx, req)
}

func newWriter() (*fpdf.Fpdf, error) {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCompression(true)
	doc.AddUTF8FontFromBytes(fontFamily, "", goregular.TTF)
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("failed to register font: %w", err)
	}
	return doc, nil
}

// fpdfMeasurer measures strings with the writer's registered font.
func fpdfMeasurer(doc *fpdf.Fpdf) MeasureFunc {
	return func(s string, fontSize float64) float64 {
		doc.SetFont(fontFamily, "", fontSize)
		return doc.GetStringWidth(s)
	}
}

// drawText draws placements given in bottom-left page space. The writer
// uses a top-left origin with Y at the baseline.
func drawText(doc *fpdf.Fpdf, pageH float64, placements []Placement) {
	for _, p := range placements {
		doc.SetFont(fontFamily, "", p.FontSize)
		doc.Text(p.X, pageH-p.Y, p.Text)
	}
}

func drawImage(doc *fpdf.Fpdf, name, imageType string, data []byte, w, h float64) error {
	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if err := doc.Error(); err != nil {
		return fmt.Errorf("failed to register image: %w", err)
	}
	doc.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	return doc.Error()
}

func (r *Renderer) renderImage(req Request) error {
	img, err := imaging.Open(req.InputPath)
	if err != nil {
		return &RenderError{Op: "decode image", Err: err}
	}
	b := img.Bounds()
	width, height := float64(b.Dx()), float64(b.Dy())

	doc, err := newWriter()
	if err != nil {
		return &RenderError{Op: "init", Err: err}
	}
	doc.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})

	if req.Result != nil {
		m := fpdfMeasurer(doc)
		for _, page := range req.Result.Pages {
			drawText(doc, height, LayoutPage(page, PageGeometry{Height: height, ScaleX: 1, ScaleY: 1}, m))
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return &RenderError{Op: "encode image", Err: err}
	}
	if err := drawImage(doc, "page-1", "PNG", buf.Bytes(), width, height); err != nil {
		return &RenderError{Op: "draw image", Err: err}
	}

	if err := doc.OutputFileAndClose(req.OutputPath); err != nil {
		return &RenderError{Op: "write", Err: err}
	}
	return nil
}

func (r *Renderer) renderPDF(ctx context.Context, req Request) error {
	sizes, err := pdf.PageSizes(req.InputPath)
	if err != nil {
		return &RenderError{Op: "page sizes", Err: err}
	}

	raster, err := r.rasterizer.Open(req.InputPath)
	if err != nil {
		return &RenderError{Op: "rasterize", Err: err}
	}
	defer func() { _ = raster.Close() }()

	doc, err := newWriter()
	if err != nil {
		return &RenderError{Op: "init", Err: err}
	}
	m := fpdfMeasurer(doc)

	pages := min(len(sizes), raster.NumPage())
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageW, pageH := sizes[i].Width, sizes[i].Height
		var ocrPage ocrapi.Page
		if i < len(req.Result.Pages) {
			ocrPage = req.Result.Pages[i]
		}

		dpi := DefaultRasterDPI
		var placements []Placement
		if ocrPage.HasLayout() {
			pageW, pageH = orientPage(ocrPage.Width(), ocrPage.Height(), pageW, pageH)
			scaleX := ocrPage.Width() / pageW
			scaleY := ocrPage.Height() / pageH
			dpi = 72 * scaleX
			placements = LayoutPage(ocrPage, PageGeometry{Height: pageH, ScaleX: scaleX, ScaleY: scaleY}, m)
		} else {
			r.logger.Debug("Page without OCR layout, drawing image only", slog.Int("page", i+1))
		}

		doc.AddPageFormat("P", fpdf.SizeType{Wd: pageW, Ht: pageH})
		drawText(doc, pageH, placements)

		img, err := raster.Image(i, dpi)
		if err != nil {
			return &RenderError{Op: "rasterize", Err: err}
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return &RenderError{Op: "encode page", Err: err}
		}
		if err := drawImage(doc, "page-"+strconv.Itoa(i+1), "JPG", buf.Bytes(), pageW, pageH); err != nil {
			return &RenderError{Op: "draw page", Err: err}
		}
	}

	if err := doc.OutputFileAndClose(req.OutputPath); err != nil {
		return &RenderError{Op: "write", Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: input path comes from the caller
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // G304: output path comes from the caller
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
