package render

import (
	"github.com/orrn/labeldispatch/internal/core"
)

// TestLabel renders a one-off calibration label for a printer. Zero sizes
// fall back to a 50x30 mm label.
func TestLabel(widthMM, heightMM float64, printerName, address string) (*core.Artifact, error) {
	if widthMM <= 0 {
		widthMM = 50
	}
	if heightMM <= 0 {
		heightMM = 30
	}

	width := mmToDots(widthMM, defaultDPI)
	height := mmToDots(heightMM, defaultDPI)
	centerX, centerY := width/2, height/2

	schema := &LabelSchema{
		Name:     "test",
		WidthMM:  widthMM,
		HeightMM: heightMM,
		GapMM:    2,
		DPI:      defaultDPI,
		Elements: []LabelElement{
			{Type: "text", X: centerX - 80, Y: centerY - 40, XScale: 2, YScale: 2, Content: "TEST LABEL"},
			{Type: "text", X: centerX - 100, Y: centerY + 20, Content: "Printer: {{name}}"},
			{Type: "barcode", X: centerX - 100, Y: centerY + 60, Height: 60, Content: "{{address}}"},
		},
	}

	program, err := NewGenerator().Generate(schema, map[string]string{
		"name":    printerName,
		"address": address,
	}, &PageSize{WidthDots: width, HeightDots: height})
	if err != nil {
		return nil, err
	}
	return &core.Artifact{
		Name:        "test.prn",
		ContentType: tsplContentType,
		Data:        []byte(program),
	}, nil
}
