package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/core"
)

const (
	OutputFileName  = "label.prn"
	tsplContentType = "application/vnd.tsc.tspl"
)

// TSPLRenderer implements core.Renderer for JSON label schemas.
type TSPLRenderer struct {
	gen    *Generator
	logger *zap.Logger
}

func NewTSPLRenderer(logger *zap.Logger) *TSPLRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TSPLRenderer{gen: NewGenerator(), logger: logger}
}

func (r *TSPLRenderer) Render(ctx context.Context, detail *core.JobDetail, templatePath string) (*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	schema, err := r.gen.ParseSchema(raw)
	if err != nil {
		return nil, err
	}

	program, err := r.gen.Generate(schema, Variables(detail), pageSize(detail))
	if err != nil {
		return nil, err
	}

	out := filepath.Join(filepath.Dir(templatePath), OutputFileName)
	if err := os.WriteFile(out, []byte(program), 0o600); err != nil {
		return nil, fmt.Errorf("write label: %w", err)
	}
	r.logger.Debug("label rendered",
		zap.Int64("job_id", detail.JobOrderID),
		zap.String("schema", schema.Name),
		zap.Int("bytes", len(program)))

	return &core.Artifact{
		Name:        OutputFileName,
		Path:        out,
		ContentType: tsplContentType,
		Data:        []byte(program),
	}, nil
}

// Variables flattens a job detail into placeholder values. Label properties
// are reachable as {{Code}} and {{Type.Code}}; equipment properties by name.
// For a repeated bare code the first label property wins.
func Variables(detail *core.JobDetail) map[string]string {
	vars := make(map[string]string, len(detail.Equipment)+2*len(detail.Labels))
	for _, p := range detail.Equipment {
		if _, ok := vars[p.Property]; !ok {
			vars[p.Property] = p.Value
		}
	}
	for _, p := range detail.Labels {
		if _, ok := vars[p.PropertyCode]; !ok {
			vars[p.PropertyCode] = p.Value
		}
		qualified := p.TypeProperty + "." + p.PropertyCode
		if _, ok := vars[qualified]; !ok {
			vars[qualified] = p.Value
		}
	}
	return vars
}

func pageSize(detail *core.JobDetail) *PageSize {
	w, okW := parseDots(detail.PaperWidth())
	h, okH := parseDots(detail.PaperHeight())
	if !okW || !okH {
		return nil
	}
	return &PageSize{WidthDots: w, HeightDots: h}
}
