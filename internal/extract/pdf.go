package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kbase/internal/models"
	"github.com/ledongthuc/pdf"
)

// pdfExtractor emits each page's native text followed by the OCR text of its images.
type pdfExtractor struct {
	ocr OCR
}

// Extract walks pages in order. An image that cannot be decoded or recognized
// is reported to observe as a SkipImage outcome and does not fail the file.
func (p *pdfExtractor) Extract(ctx context.Context, path string, content []byte, observe Observer) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		p.appendImageText(ctx, &buf, path, content, i, page, observe)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

func (p *pdfExtractor) appendImageText(ctx context.Context, buf *strings.Builder, path string, content []byte, pageNum int, page pdf.Page, observe Observer) {
	for _, img := range pageImages(page) {
		skip := func(err error) {
			observe.emit(models.Outcome{
				Kind:   models.SkipImage,
				Path:   path,
				Page:   pageNum,
				Image:  img.name,
				Reason: err.Error(),
			})
		}
		if p.ocr == nil {
			skip(ErrOCRDisabled)
			continue
		}
		data, err := img.encode(content)
		if err != nil {
			skip(&OCRError{Path: path, Page: pageNum, Image: img.name, Err: fmt.Errorf("decode image: %w", err)})
			continue
		}
		text, err := p.ocr.Recognize(ctx, data)
		if err != nil {
			skip(&OCRError{Path: path, Page: pageNum, Image: img.name, Err: fmt.Errorf("recognize: %w", err)})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		buf.WriteString(imageBlock(pageNum, text))
	}
}
