package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const defaultDPI = 203

// LabelSchema is the JSON template stored with a job. Text-bearing elements
// may reference {{Code}} or {{Type.Code}} placeholders.
type LabelSchema struct {
	Name      string                 `json:"name"`
	WidthMM   float64                `json:"width_mm"`
	HeightMM  float64                `json:"height_mm"`
	GapMM     float64                `json:"gap_mm"`
	DPI       int                    `json:"dpi"`
	Copies    int                    `json:"copies"`
	Elements  []LabelElement         `json:"elements"`
	Variables map[string]VariableDef `json:"variables"`
}

type LabelElement struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`

	Content  string `json:"content,omitempty"`
	Font     string `json:"font,omitempty"`
	Rotation int    `json:"rotation,omitempty"`
	XScale   int    `json:"x_scale,omitempty"`
	YScale   int    `json:"y_scale,omitempty"`

	Symbology string `json:"symbology,omitempty"`
	Height    int    `json:"height,omitempty"`
	Narrow    int    `json:"narrow,omitempty"`
	Wide      int    `json:"wide,omitempty"`

	Level     string `json:"level,omitempty"`
	CellWidth int    `json:"cell_width,omitempty"`

	XEnd      int `json:"x_end,omitempty"`
	YEnd      int `json:"y_end,omitempty"`
	Thickness int `json:"thickness,omitempty"`

	X1 int `json:"x1,omitempty"`
	Y1 int `json:"y1,omitempty"`
	X2 int `json:"x2,omitempty"`
	Y2 int `json:"y2,omitempty"`

	Radius int `json:"radius,omitempty"`

	Columns    int `json:"columns,omitempty"`
	ModuleSize int `json:"module_size,omitempty"`

	Width int `json:"width,omitempty"`
}

type VariableDef struct {
	Required bool   `json:"required"`
	Default  string `json:"default"`
}

// PageSize overrides the schema's millimetre size with printer dots.
type PageSize struct {
	WidthDots  int
	HeightDots int
}

var placeholderRe = regexp.MustCompile(`\{\{([\w.]+)\}\}`)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) ParseSchema(data []byte) (*LabelSchema, error) {
	var schema LabelSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse label schema: %w", err)
	}
	if schema.DPI == 0 {
		schema.DPI = defaultDPI
	}
	if len(schema.Elements) == 0 {
		return nil, fmt.Errorf("label schema %q has no elements", schema.Name)
	}
	return &schema, nil
}

func (g *Generator) ValidateVariables(schema *LabelSchema, variables map[string]string) error {
	for name, def := range schema.Variables {
		if value := variables[name]; value == "" && def.Required && def.Default == "" {
			return fmt.Errorf("required variable '%s' is missing", name)
		}
	}
	return nil
}

func (g *Generator) substituteVariables(content string, variables map[string]string, schema *LabelSchema) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value := variables[name]; value != "" {
			return value
		}
		if def, ok := schema.Variables[name]; ok {
			return def.Default
		}
		return ""
	})
}

// Generate emits a complete TSPL2 program. A non-nil page replaces the
// schema size with dot coordinates.
func (g *Generator) Generate(schema *LabelSchema, variables map[string]string, page *PageSize) (string, error) {
	if err := g.ValidateVariables(schema, variables); err != nil {
		return "", err
	}

	var sb strings.Builder
	if page != nil {
		fmt.Fprintf(&sb, "SIZE %d dot,%d dot\n", page.WidthDots, page.HeightDots)
		fmt.Fprintf(&sb, "GAP %d dot,0 dot\n", mmToDots(schema.GapMM, schema.DPI))
	} else {
		fmt.Fprintf(&sb, "SIZE %.0f mm, %.0f mm\n", schema.WidthMM, schema.HeightMM)
		fmt.Fprintf(&sb, "GAP %.0f mm, 0 mm\n", schema.GapMM)
	}
	sb.WriteString("DIRECTION 0\n")
	sb.WriteString("CLS\n")

	for i := range schema.Elements {
		elem := &schema.Elements[i]
		cmd, err := g.generateElement(elem, variables, schema)
		if err != nil {
			return "", fmt.Errorf("error generating %s element: %w", elem.Type, err)
		}
		sb.WriteString(cmd)
		sb.WriteString("\n")
	}

	copies := schema.Copies
	if copies <= 0 {
		copies = 1
	}
	fmt.Fprintf(&sb, "PRINT %d\n", copies)
	return sb.String(), nil
}

func (g *Generator) generateElement(elem *LabelElement, variables map[string]string, schema *LabelSchema) (string, error) {
	content := escapeTSPLString(g.substituteVariables(elem.Content, variables, schema))
	switch elem.Type {
	case "text":
		return fmt.Sprintf(`TEXT %d,%d,"%s",%d,%d,%d,"%s"`,
			elem.X, elem.Y, or(elem.Font, "3"), elem.Rotation, orInt(elem.XScale, 1), orInt(elem.YScale, 1), content), nil
	case "block":
		return fmt.Sprintf(`BLOCK %d,%d,%d,%d,"%s",%d,%d,%d,"%s"`,
			elem.X, elem.Y, elem.Width, elem.Height, or(elem.Font, "3"), elem.Rotation,
			orInt(elem.XScale, 1), orInt(elem.YScale, 1), content), nil
	case "barcode":
		narrow := orInt(elem.Narrow, 2)
		return fmt.Sprintf(`BARCODE %d,%d,"%s",%d,%d,%d,%d,%d,"%s"`,
			elem.X, elem.Y, or(elem.Symbology, "128"), orInt(elem.Height, 80), elem.Rotation,
			narrow, orInt(elem.Wide, 2), narrow, content), nil
	case "qrcode":
		return fmt.Sprintf(`QRCODE %d,%d,%s,%d,%d,A,"%s"`,
			elem.X, elem.Y, or(elem.Level, "M"), orInt(elem.CellWidth, 4), elem.Rotation, content), nil
	case "pdf417":
		return fmt.Sprintf(`PDF417 %d,%d,%d,0,0,%d,%d,"%s"`,
			elem.X, elem.Y, orInt(elem.Columns, 3), orInt(elem.ModuleSize, 2), elem.Rotation, content), nil
	case "datamatrix":
		return fmt.Sprintf(`DMATRIX %d,%d,%d,%d,A,"%s"`,
			elem.X, elem.Y, orInt(elem.ModuleSize, 2), elem.Rotation, content), nil
	case "box":
		return fmt.Sprintf("BOX %d,%d,%d,%d,%d", elem.X, elem.Y, elem.XEnd, elem.YEnd, orInt(elem.Thickness, 1)), nil
	case "line":
		return fmt.Sprintf("BAR %d,%d,%d,%d,%d", elem.X1, elem.Y1, elem.X2, elem.Y2, orInt(elem.Thickness, 1)), nil
	case "circle":
		return fmt.Sprintf("CIRCLE %d,%d,%d,%d", elem.X, elem.Y, elem.Radius, orInt(elem.Thickness, 1)), nil
	default:
		return "", fmt.Errorf("unsupported element type: %s", elem.Type)
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func mmToDots(mm float64, dpi int) int {
	if dpi == 0 {
		dpi = defaultDPI
	}
	return int(mm * float64(dpi) / 25.4)
}

// parseDots accepts the equipment paper size values, which are whole dots
// but sometimes arrive with a decimal part.
func parseDots(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(f), true
}

func escapeTSPLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
