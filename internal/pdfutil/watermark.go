package pdfutil

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// DraftWatermarkText is stamped on previews of not-yet-signed documents.
const DraftWatermarkText = "DRAFT - NOT SIGNED"

// Watermark overlays text diagonally on every page of a PDF and returns
// the stamped copy. The input bytes are never modified; callers must
// keep hashing the canonical bytes, not the stamped ones.
func Watermark(document []byte, text string) ([]byte, error) {
	if text == "" {
		text = DraftWatermarkText
	}

	wm, err := api.TextWatermark(text, "font:Helvetica-Bold, points:42, rot:45, op:0.3, fillc:#909090", true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("building watermark: %w", err)
	}

	var out bytes.Buffer
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.AddWatermarks(bytes.NewReader(document), &out, nil, wm, conf); err != nil {
		return nil, fmt.Errorf("stamping watermark: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount reads the page count of a PDF. Returns an error for
// non-PDF input.
func PageCount(document []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(document), conf)
	if err != nil {
		return 0, fmt.Errorf("reading page count: %w", err)
	}
	return n, nil
}
