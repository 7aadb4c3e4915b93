package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one source record keyed by lowercased column header.
type Row map[string]string

// Get returns the value of a column, matched case-insensitively.
func (r Row) Get(col string) string {
	return r[strings.ToLower(col)]
}

// Source yields rows until it returns io.EOF.
type Source interface {
	Next() (Row, error)
	Close() error
}

// OpenSource opens a .csv or .xlsx file by extension.
func OpenSource(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		src, err := NewCSVSource(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		src.closer = f
		return src, nil
	case ".xlsx", ".xlsm":
		return OpenXLSXSource(path)
	default:
		return nil, fmt.Errorf("unsupported import file type %q", filepath.Ext(path))
	}
}

func headerIndex(cols []string) []string {
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}
	return header
}

func toRow(header, cols []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if i < len(cols) {
			row[h] = cols[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

type CSVSource struct {
	r      *csv.Reader
	header []string
	closer io.Closer
}

// NewCSVSource reads the header line of r and returns a source over the
// remaining records.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cols, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv has no header row")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return &CSVSource{r: cr, header: headerIndex(cols)}, nil
}

func (s *CSVSource) Next() (Row, error) {
	cols, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read csv record: %w", err)
	}
	return toRow(s.header, cols), nil
}

func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// XLSXSource streams the first worksheet of a workbook.
type XLSXSource struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

func OpenXLSXSource(path string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("sheet %q has no header row", sheets[0])
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &XLSXSource{f: f, rows: rows, header: headerIndex(cols)}, nil
}

func (s *XLSXSource) Next() (Row, error) {
	for s.rows.Next() {
		cols, err := s.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet row: %w", err)
		}
		if len(cols) == 0 {
			continue
		}
		return toRow(s.header, cols), nil
	}
	if err := s.rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return nil, io.EOF
}

func (s *XLSXSource) Close() error {
	s.rows.Close()
	return s.f.Close()
}
