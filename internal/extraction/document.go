package extraction

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"

	"github.com/gen2brain/go-fitz"
)

// maxPDFPages limits how many pages are sent to the vision model.
const maxPDFPages = 2

// normalizeToImages converts arbitrary document bytes to a slice of
// JPEG page images for the vision path. PDFs are rendered page by page
// with mupdf; images pass through unchanged.
func normalizeToImages(content []byte) ([][]byte, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	switch contentKind(content) {
	case "pdf":
		return renderPDFPages(content)
	case "image":
		return [][]byte{content}, nil
	default:
		return nil, fmt.Errorf("unsupported document format")
	}
}

func contentKind(content []byte) string {
	switch mime := http.DetectContentType(content); mime {
	case "application/pdf":
		return "pdf"
	case "image/jpeg", "image/png", "image/bmp", "image/tiff":
		return "image"
	default:
		return mime
	}
}

func renderPDFPages(content []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var images [][]byte
	for pageNum := 0; pageNum < pages; pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			continue
		}
		images = append(images, buf.Bytes())
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no pages could be rendered from PDF")
	}
	return images, nil
}
