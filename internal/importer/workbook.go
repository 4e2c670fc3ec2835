package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/medq/internal/content"
)

// Sheet names of a content workbook, root to leaf.
const (
	SheetYears     = "Years"
	SheetModules   = "Modules"
	SheetSubjects  = "Subjects"
	SheetLectures  = "Lectures"
	SheetQuestions = "Questions"
)

const optionPrefix = "option_"

var (
	yearColumns     = []string{"id", "name", "icon", "legacy_key"}
	moduleColumns   = []string{"id", "name", "year_id", "legacy_key"}
	subjectColumns  = []string{"id", "name", "module_id", "legacy_key"}
	lectureColumns  = []string{"id", "name", "subject_id", "order", "legacy_key"}
	questionColumns = []string{"id", "lecture_id", "text", "correct_index", "explanation", "difficulty", "order", "legacy_key"}
)

// WriteWorkbook writes b as an XLSX workbook with one sheet per kind. Options
// are spread over option_1..option_N columns.
func WriteWorkbook(w io.Writer, b content.Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	var yRows, mRows, sRows, lRows [][]any
	for _, y := range b.Years {
		yRows = append(yRows, []any{y.ID, y.Name, y.Icon, y.LegacyKey})
	}
	for _, m := range b.Modules {
		mRows = append(mRows, []any{m.ID, m.Name, m.YearID, m.LegacyKey})
	}
	for _, s := range b.Subjects {
		sRows = append(sRows, []any{s.ID, s.Name, s.ModuleID, s.LegacyKey})
	}
	for _, l := range b.Lectures {
		lRows = append(lRows, []any{l.ID, l.Name, l.Subject(), l.Order, l.LegacyKey})
	}

	maxOptions := 0
	for _, q := range b.Questions {
		maxOptions = max(maxOptions, len(q.Options))
	}
	qHeader := append([]string(nil), questionColumns...)
	for i := range maxOptions {
		qHeader = append(qHeader, optionPrefix+strconv.Itoa(i+1))
	}
	var qRows [][]any
	for _, q := range b.Questions {
		row := []any{q.ID, q.LectureID, q.Text, q.CorrectIndex, q.Explanation, q.Difficulty, q.Order, q.LegacyKey}
		for _, o := range q.Options {
			row = append(row, o)
		}
		qRows = append(qRows, row)
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
	}{
		{SheetYears, yearColumns, yRows},
		{SheetModules, moduleColumns, mRows},
		{SheetSubjects, subjectColumns, sRows},
		{SheetLectures, lectureColumns, lRows},
		{SheetQuestions, qHeader, qRows},
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeRows(f, s.name, s.header, s.rows); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []string, rows [][]any) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// ReadWorkbook reads a workbook written by WriteWorkbook or by hand. Sheets
// may be missing; columns are matched by header name.
func ReadWorkbook(r io.Reader) (content.Bundle, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return content.Bundle{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b content.Bundle
	err = readSheet(f, SheetYears, func(row sheetRow) error {
		b.Years = append(b.Years, content.Year{
			ID: row.str("id"), Name: row.str("name"), Icon: row.str("icon"), LegacyKey: row.str("legacy_key"),
		})
		return nil
	})
	if err != nil {
		return content.Bundle{}, err
	}
	err = readSheet(f, SheetModules, func(row sheetRow) error {
		b.Modules = append(b.Modules, content.Module{
			ID: row.str("id"), Name: row.str("name"), YearID: row.str("year_id"), LegacyKey: row.str("legacy_key"),
		})
		return nil
	})
	if err != nil {
		return content.Bundle{}, err
	}
	err = readSheet(f, SheetSubjects, func(row sheetRow) error {
		b.Subjects = append(b.Subjects, content.Subject{
			ID: row.str("id"), Name: row.str("name"), ModuleID: row.str("module_id"), LegacyKey: row.str("legacy_key"),
		})
		return nil
	})
	if err != nil {
		return content.Bundle{}, err
	}
	err = readSheet(f, SheetLectures, func(row sheetRow) error {
		order, err := row.number("order")
		if err != nil {
			return err
		}
		l := content.Lecture{ID: row.str("id"), Name: row.str("name"), Order: order, LegacyKey: row.str("legacy_key")}
		if s := row.str("subject_id"); s != "" {
			l.SubjectID = &s
		}
		b.Lectures = append(b.Lectures, l)
		return nil
	})
	if err != nil {
		return content.Bundle{}, err
	}
	err = readSheet(f, SheetQuestions, func(row sheetRow) error {
		correct, err := row.number("correct_index")
		if err != nil {
			return err
		}
		order, err := row.number("order")
		if err != nil {
			return err
		}
		b.Questions = append(b.Questions, content.Question{
			ID:           row.str("id"),
			LectureID:    row.str("lecture_id"),
			Text:         row.str("text"),
			Options:      row.options(),
			CorrectIndex: correct,
			Explanation:  row.str("explanation"),
			Difficulty:   row.str("difficulty"),
			Order:        order,
			LegacyKey:    row.str("legacy_key"),
		})
		return nil
	})
	if err != nil {
		return content.Bundle{}, err
	}
	return b, nil
}

type sheetRow struct {
	sheet  string
	line   int
	header []string
	cells  []string
}

func (r sheetRow) str(col string) string {
	for i, h := range r.header {
		if h == col && i < len(r.cells) {
			return strings.TrimSpace(r.cells[i])
		}
	}
	return ""
}

func (r sheetRow) number(col string) (int, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: column %s: %q is not a number", r.sheet, r.line, col, s)
	}
	return n, nil
}

// options returns the non-empty option_N cells in column order.
func (r sheetRow) options() []string {
	var opts []string
	for i, h := range r.header {
		if !strings.HasPrefix(h, optionPrefix) || i >= len(r.cells) {
			continue
		}
		if v := strings.TrimSpace(r.cells[i]); v != "" {
			opts = append(opts, v)
		}
	}
	return opts
}

func readSheet(f *excelize.File, sheet string, fn func(sheetRow) error) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for i, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		if err := fn(sheetRow{sheet: sheet, line: i + 2, header: header, cells: cells}); err != nil {
			return err
		}
	}
	return nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
