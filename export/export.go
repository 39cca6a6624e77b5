// Package export renders client listings as JSON, YAML, CBOR or XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"constellation/document"
	"constellation/record"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatCBOR, FormatXLSX}
}

// ParseFormat accepts a format name in any case. "yml" is read as YAML.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatCBOR, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Row is one exported client with the names of its tags.
type Row struct {
	ID        string        `json:"id" yaml:"id" cbor:"id"`
	Name      string        `json:"name" yaml:"name" cbor:"name"`
	Slug      string        `json:"slug" yaml:"slug" cbor:"slug"`
	Status    string        `json:"status" yaml:"status" cbor:"status"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at" cbor:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at" cbor:"updated_at"`
	Data      *document.Map `json:"data" yaml:"data" cbor:"data"`
	Tags      []string      `json:"tags" yaml:"tags" cbor:"tags"`
}

// FromClient builds the row of a client whose tags are loaded.
func FromClient(c *record.Client) Row {
	return Row{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Data:      c.Data().Clone(),
		Tags:      c.TagNames(),
	}
}

// Write renders rows to w in format.
func Write(w io.Writer, format Format, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case FormatCBOR:
		return writeCBOR(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func writeCBOR(w io.Writer, rows []Row) error {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return err
	}
	data, err := em.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding cbor: %w", err)
	}
	_, err = w.Write(data)
	return err
}

const sheetName = "Clients"

var fixedHeaders = []string{"ID", "Name", "Slug", "Status", "Created", "Updated", "Tags"}

// writeXLSX writes one sheet: the fixed columns, then one column per
// document key in order of first appearance.
func writeXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	keys := documentKeys(rows)
	header := make([]any, 0, len(fixedHeaders)+len(keys))
	for _, h := range fixedHeaders {
		header = append(header, h)
	}
	for _, k := range keys {
		header = append(header, k)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range rows {
		values := []any{
			r.ID, r.Name, r.Slug, r.Status,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UpdatedAt.UTC().Format(time.RFC3339),
			strings.Join(r.Tags, ", "),
		}
		for _, k := range keys {
			v, _ := r.Data.Get(k)
			values = append(values, v.Text())
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func documentKeys(rows []Row) []string {
	seen := map[string]bool{}
	var keys []string
	for _, r := range rows {
		for _, k := range r.Data.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
