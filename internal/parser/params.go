package parser

import (
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cast"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
	"github.com/MeKo-Tech/ocrparse/internal/recognition"
)

const (
	mimePDF = "application/pdf"

	// a4WidthInches is the width of an A4 sheet used to estimate image DPI.
	a4WidthInches = 21 / 2.54

	lowDPIWarning = 70
)

var imageMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/tiff",
	"image/bmp",
	"image/gif",
	"image/webp",
}

// IsImage reports whether mimeType is a supported raster image type.
func IsImage(mimeType string) bool {
	for _, m := range imageMimeTypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// ImageInfo describes an image input after preparation.
type ImageInfo struct {
	// Path is the file handed to the engine; it differs from the input
	// when the alpha channel was removed.
	Path      string
	DPI       int // detected resolution, 0 when the file carries none
	Width     int
	Flattened bool
}

// A4DPI estimates the resolution of an image scanned from an A4 page.
func (i ImageInfo) A4DPI() int {
	return int(float64(i.Width) / a4WidthInches)
}

// PrepareImage reads the resolution and size of an image and, when it has
// transparent pixels, writes a flattened copy into workDir.
func PrepareImage(path, workDir string, logger *slog.Logger) ImageInfo {
	info := ImageInfo{Path: path}

	dpi, err := imageDPI(path)
	if err != nil {
		logger.Warn("Error while getting DPI from image", slog.String("image", path), slog.String("error", err.Error()))
	} else {
		info.DPI = dpi
	}

	img, err := imaging.Open(path)
	if err != nil {
		logger.Warn("Error while calculating DPI for image", slog.String("image", path), slog.String("error", err.Error()))
		return info
	}
	info.Width = img.Bounds().Dx()
	logger.Debug("Estimated DPI based on image width", slog.Int("dpi", info.A4DPI()), slog.Int("width", info.Width))

	if !hasAlpha(img) {
		return info
	}
	logger.Info("Removing alpha layer from image", slog.String("image", path))
	flat := filepath.Join(workDir, "image-no-alpha.png")
	if err := imaging.Save(flattenAlpha(img), flat); err != nil {
		logger.Warn("Failed to remove alpha layer", slog.String("error", err.Error()))
		return info
	}
	info.Path = flat
	info.Flattened = true
	return info
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// flattenAlpha composes img onto a white background.
func flattenAlpha(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, imaging.Clone(img), image.Point{}, 1.0)
}

// Inputs are the files one recognition run reads and writes.
type Inputs struct {
	Document string
	MimeType string
	FileName string
	Archive  string
	Sidecar  string
	Image    *ImageInfo
}

// BuildParams derives the recognition parameters for one run. With
// safeFallback the document is always fully recognized.
func BuildParams(in Inputs, s config.ParseSettings, safeFallback bool, logger *slog.Logger) (recognition.Params, error) {
	p := recognition.Params{
		InputPath:  in.Document,
		MimeType:   in.MimeType,
		IsImage:    IsImage(in.MimeType),
		FileName:   in.FileName,
		OutputPath: in.Archive,
		Jobs:       s.ThreadsPerWorker,
		Language:   s.Language,
		OutputType: s.OutputType,
	}
	if p.FileName == "" {
		p.FileName = filepath.Base(in.Document)
	}

	if strings.Contains(p.OutputType, "pdfa") {
		p.ColorConversionStrategy = s.ColorConversionStrategy
	}

	switch {
	case s.Mode == config.ModeForce || safeFallback:
		p.ForceOCR = true
	case s.Mode == config.ModeSkip || s.Mode == config.ModeSkipNoArchive:
		p.SkipText = true
	case s.Mode == config.ModeRedo:
		p.RedoOCR = true
	default:
		return p, parseErrorf("Invalid ocr mode: %s", s.Mode)
	}

	switch s.Clean {
	case config.CleanClean:
		p.Clean = true
	case config.CleanFinal:
		if s.Mode == config.ModeRedo {
			p.Clean = true
		} else {
			p.CleanFinal = true
		}
	}

	p.Deskew = s.Deskew && s.Mode != config.ModeRedo
	if s.Rotate {
		p.RotatePages = true
		p.RotatePagesThreshold = s.RotateThreshold
	}

	if s.Pages > 0 {
		p.Pages = pdf.FirstPages(s.Pages)
	} else {
		p.SidecarPath = in.Sidecar
	}

	if p.IsImage {
		img := in.Image
		if img == nil {
			img = &ImageInfo{Path: in.Document}
		}
		p.InputPath = img.Path

		switch {
		case img.DPI > 0:
			logger.Debug("Detected DPI for image", slog.String("image", in.Document), slog.Int("dpi", img.DPI))
			p.ImageDPI = img.DPI
		case s.ImageDPI > 0:
			p.ImageDPI = s.ImageDPI
		case img.A4DPI() > 0:
			p.ImageDPI = img.A4DPI()
		default:
			return p, parseErrorf("Cannot produce archive PDF for image %s, no DPI information is present in this image and no image DPI is configured.", in.Document)
		}
		if p.ImageDPI < lowDPIWarning {
			logger.Warn("Image DPI is low, OCR may fail", slog.Int("dpi", p.ImageDPI))
		}
	}

	applyUserArgs(&p, s.UserArgs, logger)

	if s.MaxImagePixels >= 0 {
		mp := float64(s.MaxImagePixels) / 1_000_000.0
		if mp == 0 {
			logger.Debug("OCR pixel limit is disabled!")
		} else {
			logger.Debug("Calculated megapixels for OCR", slog.Float64("mpixels", mp))
		}
		p.MaxImageMpixels = &mp
	}

	return p, nil
}

// applyUserArgs overlays free-form user args onto p. Keys naming a
// parameter replace it; everything else is passed along in Extra. A value
// of the wrong type is ignored with a warning.
func applyUserArgs(p *recognition.Params, args map[string]any, logger *slog.Logger) {
	for key, value := range args {
		var err error
		switch key {
		case "language":
			err = setArg(&p.Language, cast.ToStringE, value)
		case "output_type":
			err = setArg(&p.OutputType, cast.ToStringE, value)
		case "color_conversion_strategy":
			err = setArg(&p.ColorConversionStrategy, cast.ToStringE, value)
		case "jobs":
			err = setArg(&p.Jobs, cast.ToIntE, value)
		case "force_ocr":
			err = setArg(&p.ForceOCR, cast.ToBoolE, value)
		case "skip_text":
			err = setArg(&p.SkipText, cast.ToBoolE, value)
		case "redo_ocr":
			err = setArg(&p.RedoOCR, cast.ToBoolE, value)
		case "clean":
			err = setArg(&p.Clean, cast.ToBoolE, value)
		case "clean_final":
			err = setArg(&p.CleanFinal, cast.ToBoolE, value)
		case "deskew":
			err = setArg(&p.Deskew, cast.ToBoolE, value)
		case "rotate_pages":
			err = setArg(&p.RotatePages, cast.ToBoolE, value)
		case "rotate_pages_threshold":
			err = setArg(&p.RotatePagesThreshold, cast.ToFloat64E, value)
		case "pages":
			err = setArg(&p.Pages, cast.ToStringE, value)
		case "image_dpi":
			err = setArg(&p.ImageDPI, cast.ToIntE, value)
		case "sidecar", "input_file", "output_file":
			logger.Warn("User arg cannot override output paths", slog.String("key", key))
		default:
			if config.IsAPIUserArg(key) {
				// consumed by the API session
				break
			}
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[key] = value
		}
		if err != nil {
			logger.Warn("There is an issue with the OCR user args, so this one will not be used",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

func setArg[T any](dst *T, conv func(any) (T, error), v any) error {
	out, err := conv(v)
	if err != nil {
		return err
	}
	*dst = out
	return nil
}
