// Package importer parses product catalogs from XLSX and CSV files into
// sparse product records ready for enrichment.
package importer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrich-cli/internal/model"
)

// columnAliases maps header tokens to canonical column names. Catalog
// exports arrive with Slovenian, German, or English headers.
var columnAliases = map[string]string{
	"ean": "ean", "ean13": "ean", "barcode": "ean", "gtin": "ean",
	"črtna koda": "ean", "crtna koda": "ean",
	"name": "name", "product name": "name", "title": "name",
	"naziv": "name", "naziv artikla": "name", "artikel": "name",
	"bezeichnung": "name", "opis": "name",
	"brand": "brand", "manufacturer": "brand", "marke": "brand",
	"znamka": "brand", "blagovna znamka": "brand", "proizvajalec": "brand",
}

// columns holds the resolved position of each canonical column in a file.
type columns struct {
	ean, name, brand int
}

func resolveColumns(header []string) (columns, error) {
	cols := columns{ean: -1, name: -1, brand: -1}
	for i, h := range header {
		canonical, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		switch canonical {
		case "ean":
			if cols.ean < 0 {
				cols.ean = i
			}
		case "name":
			if cols.name < 0 {
				cols.name = i
			}
		case "brand":
			if cols.brand < 0 {
				cols.brand = i
			}
		}
	}
	if cols.ean < 0 && cols.name < 0 {
		return cols, eris.Errorf("importer: no ean or name column in header %v", header)
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// rowsToProducts maps raw rows through the resolved columns, skipping rows
// that carry neither an EAN nor a name.
func rowsToProducts(header []string, rows [][]string) ([]model.Product, error) {
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var products []model.Product
	for _, row := range rows {
		ean := cell(row, cols.ean)
		name := cell(row, cols.name)
		if ean == "" && name == "" {
			continue
		}
		products = append(products, model.Product{
			EAN:    ean,
			Name:   name,
			Brand:  cell(row, cols.brand),
			Status: model.StatusPending,
		})
	}
	return products, nil
}

// ReadFile parses a catalog file, dispatching on its extension.
func ReadFile(path string) ([]model.Product, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := xlsx.OpenFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "importer: open xlsx")
		}
		return fromWorkbook(f)
	case ".csv":
		return readCSVPath(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// Read parses a catalog from a reader. filename determines the format; XLSX
// content is buffered because the format cannot be streamed.
func Read(r io.Reader, filename string) ([]model.Product, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "importer: read xlsx upload")
		}
		f, err := xlsx.OpenBinary(raw)
		if err != nil {
			return nil, eris.Wrap(err, "importer: open xlsx upload")
		}
		return fromWorkbook(f)
	case ".csv":
		return readCSV(r)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(filename))
	}
}

// fromWorkbook reads the first sheet; catalog exports put data there.
func fromWorkbook(f *xlsx.File) ([]model.Product, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	sheet := f.Sheets[0]

	var header []string
	var rows [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, eris.New("importer: empty sheet")
	}
	return rowsToProducts(header, rows)
}

func readCSVPath(path string) ([]model.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]model.Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var header []string
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv row")
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, eris.New("importer: empty csv")
	}
	return rowsToProducts(header, rows)
}
