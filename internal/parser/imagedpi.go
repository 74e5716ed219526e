package parser

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	errNoDPI     = errors.New("no resolution metadata")
)

// imageDPI reads the horizontal resolution stored in a PNG pHYs chunk or a
// JPEG JFIF header. Other formats report errNoDPI.
func imageDPI(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: document path comes from the caller
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	head, err := r.Peek(8)
	if err != nil {
		return 0, errNoDPI
	}
	switch {
	case bytes.Equal(head, pngSignature):
		_, _ = r.Discard(8)
		return pngDPI(r)
	case head[0] == 0xFF && head[1] == 0xD8:
		_, _ = r.Discard(2)
		return jpegDPI(r)
	}
	return 0, errNoDPI
}

func pngDPI(r io.Reader) (int, error) {
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, errNoDPI
		}
		length := binary.BigEndian.Uint32(hdr[:4])
		switch string(hdr[4:]) {
		case "pHYs":
			var body [9]byte
			if length != 9 {
				return 0, errNoDPI
			}
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return 0, errNoDPI
			}
			ppu := binary.BigEndian.Uint32(body[:4])
			if body[8] != 1 || ppu == 0 {
				return 0, errNoDPI
			}
			return int(math.Round(float64(ppu) * 0.0254)), nil
		case "IDAT", "IEND":
			return 0, errNoDPI
		}
		// chunk data plus CRC
		if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
			return 0, errNoDPI
		}
	}
}

func jpegDPI(r io.Reader) (int, error) {
	var marker [4]byte
	for {
		if _, err := io.ReadFull(r, marker[:]); err != nil || marker[0] != 0xFF {
			return 0, errNoDPI
		}
		size := int(binary.BigEndian.Uint16(marker[2:]))
		if size < 2 {
			return 0, errNoDPI
		}
		switch {
		case marker[1] == 0xE0:
			seg := make([]byte, size-2)
			if _, err := io.ReadFull(r, seg); err != nil {
				return 0, errNoDPI
			}
			if len(seg) < 12 || string(seg[:5]) != "JFIF\x00" {
				continue
			}
			density := float64(binary.BigEndian.Uint16(seg[8:10]))
			switch seg[7] {
			case 1:
				if density > 0 {
					return int(math.Round(density)), nil
				}
			case 2:
				if density > 0 {
					return int(math.Round(density * 2.54)), nil
				}
			}
			return 0, errNoDPI
		case marker[1] == 0xDA || marker[1] == 0xD9:
			return 0, errNoDPI
		}
		if _, err := io.CopyN(io.Discard, r, int64(size-2)); err != nil {
			return 0, errNoDPI
		}
	}
}
