// Package tabular reads header-first tables from CSV or Excel workbooks.
package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperr "roiquant/pkg/errors"
)

// Row is one data row keyed by column header
type Row map[string]string

// Table is a parsed file: the header order plus one Row per data line
type Table struct {
	Headers []string
	Rows    []Row
}

// Has reports whether the table carries the named column
func (t *Table) Has(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// Reader handles reading Excel and CSV files
type Reader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewReader creates a reader; the file type is chosen from the extension
func NewReader(filePath string) *Reader {
	fileType := "csv"
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		fileType = "xlsx"
	}
	return &Reader{filePath: filePath, fileType: fileType}
}

// WithSheet selects the worksheet of an Excel file (default: the first one)
func (r *Reader) WithSheet(name string) *Reader {
	r.sheet = name
	return r
}

// Read parses the file into a Table
func (r *Reader) Read() (*Table, error) {
	var rows [][]string
	var err error
	switch r.fileType {
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		rows, err = r.readCSVRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, apperr.Input("%s has no header row", r.filePath)
	}
	return buildTable(rows), nil
}

// ReadRecords returns the raw records of a headerless, ragged CSV file
func ReadRecords(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to open %s", filePath)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to parse %s", filePath)
	}
	return records, nil
}

func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to open Excel file %s", r.filePath)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperr.Input("%s has no worksheets", r.filePath)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to read sheet %s of %s", sheet, r.filePath)
	}
	return rows, nil
}

func (r *Reader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to open CSV file %s", r.filePath)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to read CSV file %s", r.filePath)
	}
	return rows, nil
}

func buildTable(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	t := &Table{Headers: headers, Rows: make([]Row, 0, len(rows)-1)}
	for _, raw := range rows[1:] {
		if isBlank(raw) {
			continue
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			if j < len(raw) {
				row[h] = strings.TrimSpace(raw[j])
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(raw []string) bool {
	for _, c := range raw {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Workbook accumulates tables as worksheets of a single Excel file
type Workbook struct {
	f      *excelize.File
	sheets int
}

// NewWorkbook creates an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

// AddSheet writes t into a new worksheet named sheet
func (w *Workbook) AddSheet(sheet string, t *Table) error {
	if w.sheets == 0 {
		if err := w.f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	} else if _, err := w.f.NewSheet(sheet); err != nil {
		return err
	}
	w.sheets++

	for j, h := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := w.f.SetCellStr(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		for j, h := range t.Headers {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := w.f.SetCellStr(sheet, cell, row[h]); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveAs writes the workbook to filePath and releases it
func (w *Workbook) SaveAs(filePath string) error {
	defer w.f.Close()
	if err := w.f.SaveAs(filePath); err != nil {
		return apperr.Wrap(err, apperr.KindIO, "failed to save workbook %s", filePath)
	}
	return nil
}

// String describes the table shape
func (t *Table) String() string {
	return fmt.Sprintf("%d columns x %d rows", len(t.Headers), len(t.Rows))
}
