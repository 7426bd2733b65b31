package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/tender-eval/internal/model"
)

type DocumentGenerator interface {
	Generate(ev *model.TenderEvaluation) ([]byte, error)
}

type ExportResult struct {
	FileName string
	Content  []byte
}

// Exporter renders stored evaluations through the spreadsheet and PDF
// generators.
type Exporter struct {
	evaluations *EvaluationService
	xlsx        DocumentGenerator
	pdf         DocumentGenerator
}

func NewExporter(evaluations *EvaluationService, xlsx, pdf DocumentGenerator) *Exporter {
	return &Exporter{evaluations: evaluations, xlsx: xlsx, pdf: pdf}
}

func (e *Exporter) ExportXLSX(ctx context.Context, principal model.Principal, id uuid.UUID) (*ExportResult, error) {
	return e.export(ctx, principal, id, e.xlsx, "xlsx")
}

func (e *Exporter) ExportPDF(ctx context.Context, principal model.Principal, id uuid.UUID) (*ExportResult, error) {
	return e.export(ctx, principal, id, e.pdf, "pdf")
}

func (e *Exporter) export(ctx context.Context, principal model.Principal, id uuid.UUID, generator DocumentGenerator, ext string) (*ExportResult, error) {
	ev, err := e.evaluations.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	content, err := generator.Generate(ev)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", ext, err)
	}
	return &ExportResult{
		FileName: buildFileName(ev, ext),
		Content:  content,
	}, nil
}

func buildFileName(ev *model.TenderEvaluation, ext string) string {
	date := ev.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	project := sanitizeFileName(shortID(ev.ProjectID))
	return fmt.Sprintf("tender-evaluation-%s-%s.%s", project, date.UTC().Format("20060102"), ext)
}

func shortID(id uuid.UUID) string {
	return strings.SplitN(id.String(), "-", 2)[0]
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
