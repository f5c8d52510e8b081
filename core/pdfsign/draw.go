package pdfsign

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/klauspost/compress/zlib"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// helveticaCapHeight is the cap height of Helvetica per unit of font size.
const helveticaCapHeight = 0.718

func flate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageObjects decodes data and returns an RGB image XObject and, when the
// image has transparency, a DeviceGray soft mask for it.
func imageObjects(data []byte) (img *Stream, mask *Stream, w, h int, err error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("decode signature image: %w", err)
	}
	b := src.Bounds()
	w, h = b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, nil, 0, 0, fmt.Errorf("signature image is empty")
	}
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := src.At(x, y).RGBA()
			if a < 0xffff {
				opaque = false
			}
			if a > 0 {
				// un-premultiply
				r, g, bl = r*0xffff/a, g*0xffff/a, bl*0xffff/a
			}
			rgb = append(rgb, byte(r>>8), byte(g>>8), byte(bl>>8))
			alpha = append(alpha, byte(a>>8))
		}
	}
	pixels, err := flate(rgb)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	img = &Stream{Dict: Dict{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            int64(w),
		"Height":           int64(h),
		"ColorSpace":       Name("DeviceRGB"),
		"BitsPerComponent": int64(8),
		"Filter":           Name("FlateDecode"),
	}, Data: pixels}
	if opaque {
		return img, nil, w, h, nil
	}
	alphaData, err := flate(alpha)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	mask = &Stream{Dict: Dict{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            int64(w),
		"Height":           int64(h),
		"ColorSpace":       Name("DeviceGray"),
		"BitsPerComponent": int64(8),
		"Filter":           Name("FlateDecode"),
	}, Data: alphaData}
	return img, mask, w, h, nil
}

// fitBox scales w x h proportionally into boxW x boxH.
func fitBox(w, h int, boxW, boxH float64) (float64, float64) {
	scale := math.Min(boxW/float64(w), boxH/float64(h))
	return float64(w) * scale, float64(h) * scale
}

func helveticaFont() Dict {
	return Dict{
		"Type":     Name("Font"),
		"Subtype":  Name("Type1"),
		"BaseFont": Name("Helvetica"),
		"Encoding": Name("WinAnsiEncoding"),
	}
}

func encodeWinAnsi(s string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// contentWriter accumulates page content stream operators.
type contentWriter struct {
	buf bytes.Buffer
}

func (c *contentWriter) image(name Name, x, y, w, h float64) {
	fmt.Fprintf(&c.buf, "q %s 0 0 %s %s %s cm ", formatNumber(w), formatNumber(h), formatNumber(x), formatNumber(y))
	writeName(&c.buf, name)
	c.buf.WriteString(" Do Q\n")
}

func (c *contentWriter) text(font Name, size, x, y float64, s string) {
	c.buf.WriteString("BT 0 g ")
	writeName(&c.buf, font)
	fmt.Fprintf(&c.buf, " %s Tf %s %s Td ", formatNumber(size), formatNumber(x), formatNumber(y))
	writeLiteral(&c.buf, encodeWinAnsi(s))
	c.buf.WriteString(" Tj ET\n")
}
