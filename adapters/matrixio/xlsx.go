package matrixio

import (
	"github.com/xuri/excelize/v2"

	"genescore/domain/core"
	"genescore/domain/dataset"
)

const sheet = "Sheet1"

// readXLSX reads the first sheet of a workbook laid out like the delimited
// format: a header row of gene ids, then one cell per row.
func readXLSX(path string) (*dataset.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewDataShapeError("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, core.NewDataShapeError("sheet %s needs a header row and at least one data row", sheets[0])
	}

	geneIDs := rows[0][1:]
	var cellIDs []string
	var values []float64
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		// GetRows drops trailing empty cells
		fields := make([]string, len(geneIDs))
		copy(fields, row[1:])
		cellIDs = append(cellIDs, row[0])
		if values, err = parseRow(values, fields, len(geneIDs), i+2); err != nil {
			return nil, err
		}
	}
	return tableDataset(cellIDs, geneIDs, values)
}

func writeXLSX(path string, t *table) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	header := make([]interface{}, 0, len(t.columns)+1)
	header = append(header, "id")
	for _, c := range t.columns {
		header = append(header, c)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	row := make([]interface{}, len(t.columns)+1)
	for i, id := range t.cellIDs {
		row[0] = id
		for j, v := range t.rows[i] {
			if t.integer[j] {
				row[j+1] = int64(v)
			} else {
				row[j+1] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row[:len(t.rows[i])+1]); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}
