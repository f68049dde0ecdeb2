package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geoquiz/internal/flow"

	"github.com/xuri/excelize/v2"
)

var (
	ErrExportFailed = errors.New("export failed")
	ErrNotFinalized = errors.New("session has not reached finalize")
)

const (
	SheetBackground = "基本資料"
	SheetResponses  = "測驗結果"
	SheetSurvey     = "問卷結果"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	responseHeaders = []string{"題號", "題目", "選擇", "正確答案", "正確與否", "詳解"}
	surveyHeaders   = []string{"類型/題號", "題目內容", "學生回答"}
)

type Service struct {
	dir string
	now func() time.Time
}

func NewService(dir string) *Service {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &Service{dir: dir, now: time.Now}
}

// FileName is the attachment name for a report generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("數學評量結果_%s.xlsx", t.Format("20060102_150405"))
}

// Workbook lays the session out as background, response and (for the
// extended flow) survey sheets.
func (s *Service) Workbook(st flow.State) (*excelize.File, error) {
	if st.Stage != flow.StageFinalize || st.Result == nil {
		return nil, ErrNotFinalized
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetBackground); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename background sheet: %w", err)
	}

	headers := make([]string, 0, len(st.Background)+2)
	values := make([]any, 0, len(st.Background)+2)
	for _, b := range st.Background {
		headers = append(headers, b.Column)
		values = append(values, b.Value)
	}
	headers = append(headers, "測驗分數", "答對題數")
	values = append(values, st.Result.Score, fmt.Sprintf("%d/%d", st.Result.Correct, st.Result.Total))
	if err := writeRows(f, SheetBackground, headers, [][]any{values}); err != nil {
		_ = f.Close()
		return nil, err
	}

	rows := make([][]any, 0, len(st.Responses))
	for _, r := range st.Responses {
		verdict := "錯誤"
		if r.IsCorrect {
			verdict = "正確"
		}
		rows = append(rows, []any{r.Index, r.Prompt, r.Chosen, r.Correct, verdict, r.Explanation})
	}
	if _, err := f.NewSheet(SheetResponses); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create responses sheet: %w", err)
	}
	if err := writeRows(f, SheetResponses, responseHeaders, rows); err != nil {
		_ = f.Close()
		return nil, err
	}

	if st.Variant != flow.VariantSimple {
		rows = rows[:0]
		for _, a := range st.Survey {
			rows = append(rows, []any{a.Key, a.Statement, a.Answer})
		}
		if _, err := f.NewSheet(SheetSurvey); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create survey sheet: %w", err)
		}
		if err := writeRows(f, SheetSurvey, surveyHeaders, rows); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return f, nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r+2, err)
			}
		}
	}
	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		_ = f.SetColWidth(sheet, "A", last, 22)
	}
	return nil
}

// Render returns the workbook as xlsx bytes.
func (s *Service) Render(st flow.State) ([]byte, error) {
	f, err := s.Workbook(st)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("%w: write excel: %v", ErrExportFailed, err)
	}
	return buf.Bytes(), nil
}

// Export writes the workbook to a fresh directory under the export dir and
// returns the file path. Callers must Remove it once the file was sent.
func (s *Service) Export(ctx context.Context, st flow.State) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := s.Workbook(st)
	if err != nil {
		if errors.Is(err, ErrNotFinalized) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create export dir: %v", ErrExportFailed, err)
	}
	dir, err := os.MkdirTemp(s.dir, "export-*")
	if err != nil {
		return "", fmt.Errorf("%w: create export dir: %v", ErrExportFailed, err)
	}
	path := filepath.Join(dir, FileName(s.now()))
	if err := f.SaveAs(path); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("%w: save %s: %v", ErrExportFailed, filepath.Base(path), err)
	}
	return path, nil
}

// Remove deletes an exported file together with the directory Export made for it.
func (s *Service) Remove(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if filepath.Dir(dir) != filepath.Clean(s.dir) {
		return os.Remove(path)
	}
	return os.RemoveAll(dir)
}
