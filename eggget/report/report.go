// Package report writes the two-column file list of one or more archives:
// the path each entry would have if the archive were unpacked next to itself,
// and the archive it came from.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
	"github.com/flaneur2020/egg-get/eggget/logger"
)

// Format selects the report file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Header is the first row of every report.
var Header = []string{"File Path", "EGG File"}

// Row is one entry of the report.
type Row struct {
	FullPath    string
	ArchiveName string
}

// ParseFormat accepts "xlsx" or "csv", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatXLSX, FormatCSV:
		return f, nil
	}
	return "", eggerrors.ErrReportFailed.
		WithMessage("unknown report format").
		WithDetail("format", s)
}

// Rows lists entries of the archive at archivePath. An entry's full path is
// the archive path with its .egg extension removed, joined with the entry
// name.
func Rows(archivePath string, entries []string) []Row {
	base := filepath.Base(archivePath)
	stem := archivePath
	if ext := filepath.Ext(archivePath); strings.EqualFold(ext, ".egg") {
		stem = strings.TrimSuffix(archivePath, ext)
	}

	rows := make([]Row, 0, len(entries))
	for _, name := range entries {
		rel := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
		rows = append(rows, Row{
			FullPath:    filepath.Join(stem, rel),
			ArchiveName: base,
		})
	}
	return rows
}

// DefaultFileName is the report name used for a single archive,
// e.g. "photos.egg.xlsx".
func DefaultFileName(archivePath string, format Format) string {
	return filepath.Base(archivePath) + "." + string(format)
}

// Write encodes rows to w in the given format.
func Write(w io.Writer, format Format, rows []Row) error {
	var err error
	switch format {
	case FormatXLSX:
		err = writeXLSX(w, rows)
	case FormatCSV:
		err = writeCSV(w, rows)
	default:
		return eggerrors.ErrReportFailed.
			WithMessage("unknown report format").
			WithDetail("format", string(format))
	}
	if err != nil {
		return eggerrors.ErrReportFailed.
			WithDetail("format", string(format)).
			WithCause(err)
	}
	return nil
}

// WriteFile writes rows to path, replacing any existing file.
func WriteFile(path string, format Format, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return eggerrors.ErrReportFailed.WithDetail("path", path).WithCause(err)
	}

	if err := Write(f, format, rows); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return eggerrors.ErrReportFailed.WithDetail("path", path).WithCause(err)
	}

	logger.Info("wrote %d rows to %s", len(rows), path)
	return nil
}

func writeXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []interface{}{Header[0], Header[1]}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.FullPath, row.ArchiveName}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 80); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 30); err != nil {
		return err
	}
	return f.Write(w)
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.FullPath, row.ArchiveName}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
