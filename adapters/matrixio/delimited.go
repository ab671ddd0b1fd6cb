package matrixio

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
)

// readDelimited parses a table with a header row "id gene1 gene2 ..." and
// one cell per following row. A zero sep is detected from the header,
// trying tab, comma and space in turn.
func readDelimited(r io.Reader, sep rune) (*dataset.Dataset, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	header = strings.TrimRight(header, "\r\n")
	if header == "" {
		return nil, core.NewDataShapeError("missing header row")
	}
	if sep == 0 {
		sep = detectSeparator(header)
	}

	headerFields, err := newCSVReader(strings.NewReader(header), sep).Read()
	if err != nil {
		return nil, err
	}
	geneIDs := make([]string, 0, len(headerFields)-1)
	for _, g := range headerFields[1:] {
		geneIDs = append(geneIDs, strings.TrimSpace(g))
	}

	body := newCSVReader(br, sep)
	var cellIDs []string
	var values []float64
	for line := 2; ; line++ {
		record, err := body.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		cellIDs = append(cellIDs, strings.TrimSpace(record[0]))
		if values, err = parseRow(values, record[1:], len(geneIDs), line); err != nil {
			return nil, err
		}
	}
	return tableDataset(cellIDs, geneIDs, values)
}

func detectSeparator(header string) rune {
	for _, sep := range []rune{'\t', ',', ' '} {
		if strings.ContainsRune(header, sep) {
			return sep
		}
	}
	return '\t'
}

func newCSVReader(r io.Reader, sep rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}
