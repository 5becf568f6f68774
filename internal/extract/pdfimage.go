package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfImage is an image XObject referenced from a page's resources.
type pdfImage struct {
	name string
	v    pdf.Value
}

// pageImages returns the page's image XObjects sorted by resource name.
func pageImages(page pdf.Page) []pdfImage {
	xobjects := page.Resources().Key("XObject")
	var out []pdfImage
	for _, name := range xobjects.Keys() {
		v := xobjects.Key(name)
		if v.Kind() != pdf.Stream || v.Key("Subtype").Name() != "Image" {
			continue
		}
		out = append(out, pdfImage{name: name, v: v})
	}
	return out
}

// encode returns bytes an OCR engine can read. JPEG and JPEG 2000 streams are
// passed through; raw 8-bit samples are re-encoded as PNG.
func (img pdfImage) encode(file []byte) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%v", r)
		}
	}()

	filters := streamFilters(img.v)
	if len(filters) == 1 && (filters[0] == "DCTDecode" || filters[0] == "JPXDecode") {
		return rawStream(img.v, file)
	}
	for _, f := range filters {
		if f != "FlateDecode" {
			return nil, fmt.Errorf("unsupported filter %s", f)
		}
	}
	return samplesToPNG(img.v)
}

func streamFilters(v pdf.Value) []string {
	filter := v.Key("Filter")
	switch filter.Kind() {
	case pdf.Name:
		return []string{filter.Name()}
	case pdf.Array:
		names := make([]string, 0, filter.Len())
		for i := 0; i < filter.Len(); i++ {
			names = append(names, filter.Index(i).Name())
		}
		return names
	default:
		return nil
	}
}

// rawStream slices the undecoded stream body out of the file. The reader has no
// accessor for it, but a stream's String form ends in "@<offset>".
func rawStream(v pdf.Value, file []byte) ([]byte, error) {
	s := v.String()
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return nil, errors.New("stream offset not found")
	}
	offset, err := strconv.ParseInt(s[at+1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stream offset: %w", err)
	}
	length := v.Key("Length").Int64()
	if offset < 0 || length <= 0 || offset+length > int64(len(file)) {
		return nil, fmt.Errorf("stream out of range (offset %d, length %d)", offset, length)
	}
	return file[offset : offset+length], nil
}

// samplesToPNG decodes 8-bit DeviceGray, DeviceRGB or DeviceCMYK samples.
func samplesToPNG(v pdf.Value) ([]byte, error) {
	width := int(v.Key("Width").Int64())
	height := int(v.Key("Height").Int64())
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if bpc := v.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", bpc)
	}
	space := v.Key("ColorSpace").Name()
	var components int
	switch space {
	case "DeviceGray":
		components = 1
	case "DeviceRGB":
		components = 3
	case "DeviceCMYK":
		components = 4
	default:
		return nil, fmt.Errorf("unsupported color space %q", space)
	}

	rc := v.Reader()
	defer rc.Close()
	samples, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	if len(samples) < width*height*components {
		return nil, fmt.Errorf("short image data: %d bytes for %dx%d", len(samples), width, height)
	}

	rect := image.Rect(0, 0, width, height)
	var img image.Image
	switch components {
	case 1:
		gray := image.NewGray(rect)
		copy(gray.Pix, samples)
		img = gray
	case 3:
		rgba := image.NewRGBA(rect)
		for i := 0; i < width*height; i++ {
			rgba.Pix[i*4] = samples[i*3]
			rgba.Pix[i*4+1] = samples[i*3+1]
			rgba.Pix[i*4+2] = samples[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	case 4:
		cmyk := image.NewCMYK(rect)
		copy(cmyk.Pix, samples)
		img = cmyk
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
