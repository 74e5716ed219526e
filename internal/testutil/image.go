package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// GenerateTextImage creates a white image with text centred in black.
func GenerateTextImage(text string, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Black},
		Face: face,
	}
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	drawer.Dot = fixed.P((width-textWidth)/2, (height+textHeight)/2)
	drawer.DrawString(text)
	return img
}

// GenerateAlphaImage creates a fully transparent image with an opaque
// black square in the middle.
func GenerateAlphaImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	sq := image.Rect(width/4, height/4, 3*width/4, 3*height/4)
	draw.Draw(img, sq, &image.Uniform{color.NRGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)
	return img
}

// WritePNG writes a text image as PNG. A positive dpi is stored in a pHYs chunk.
func WritePNG(t *testing.T, dir, name string, width, height, dpi int) string {
	t.Helper()
	return WriteImagePNG(t, filepath.Join(dir, name), GenerateTextImage("Sample Text", width, height), dpi)
}

// WriteImagePNG encodes img as PNG at path. A positive dpi is stored in a pHYs chunk.
func WriteImagePNG(t *testing.T, path string, img image.Image, dpi int) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG), "Failed to encode PNG image")
	data := buf.Bytes()
	if dpi > 0 {
		data = insertPNGPhys(data, dpi)
	}
	writeImageFile(t, path, data)
	return path
}

// WriteJPEG writes a text image as JPEG. A positive dpi is stored in a JFIF header.
func WriteJPEG(t *testing.T, dir, name string, width, height, dpi int) string {
	t.Helper()

	var buf bytes.Buffer
	img := GenerateTextImage("Sample Text", width, height)
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)), "Failed to encode JPEG image")
	data := buf.Bytes()
	if dpi > 0 {
		data = insertJFIF(data, dpi)
	}
	path := filepath.Join(dir, name)
	writeImageFile(t, path, data)
	return path
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to decode image %s", path)
	return img
}

func writeImageFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// insertPNGPhys adds a pHYs chunk (pixels per metre) right after IHDR.
func insertPNGPhys(png []byte, dpi int) []byte {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	ppm := uint32(math.Round(float64(dpi) / 0.0254))

	body := make([]byte, 4+9)
	copy(body, "pHYs")
	binary.BigEndian.PutUint32(body[4:], ppm)
	binary.BigEndian.PutUint32(body[8:], ppm)
	body[12] = 1 // unit: metre

	chunk := make([]byte, 0, 4+len(body)+4)
	chunk = binary.BigEndian.AppendUint32(chunk, 9)
	chunk = append(chunk, body...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(body))

	out := make([]byte, 0, len(png)+len(chunk))
	out = append(out, png[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, png[ihdrEnd:]...)
}

// insertJFIF adds an APP0 JFIF segment with dots-per-inch density after SOI.
func insertJFIF(jpg []byte, dpi int) []byte {
	seg := []byte{0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x01}
	seg = binary.BigEndian.AppendUint16(seg, uint16(dpi)) //nolint:gosec // G115: test DPI values are small
	seg = binary.BigEndian.AppendUint16(seg, uint16(dpi)) //nolint:gosec // G115: test DPI values are small
	seg = append(seg, 0x00, 0x00)

	out := make([]byte, 0, len(jpg)+len(seg))
	out = append(out, jpg[:2]...)
	out = append(out, seg...)
	return append(out, jpg[2:]...)
}
