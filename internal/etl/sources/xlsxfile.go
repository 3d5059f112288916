package sources

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"carprep/internal/etl"
)

// ── XLSX File Source ────────────────────────────────────────
// Reads the first worksheet of a spreadsheet; row 1 is the header.

type xlsxFileSource struct{}

func init() { etl.RegisterSource(&xlsxFileSource{}) }

func (s *xlsxFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "xlsx_file",
		Label:      "Excel Workbook",
		Extensions: []string{".xlsx"},
	}
}

func (s *xlsxFileSource) Read(ctx context.Context, path string) (*etl.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty sheet %q", sheets[0])
	}
	return buildDataset(ctx, stripBOM(rows[0]), rows[1:], true)
}
