package items

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// CSVの想定ヘッダ（列順固定）
var csvHeader = []string{"storage_code", "name", "description", "total_quantity", "buffer_quantity"}

type importRow struct {
	req CreateItemRequest
	err error
}

// parseItemsCSV: Excel出力のCSVはcp932で来ることが多いので、
// UTF-8として不正なバイト列なら Shift_JIS としてデコードし直す。
func parseItemsCSV(r io.Reader) ([]importRow, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrInvalid("empty csv")
	}

	// UTF-8 BOM は剥がす
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	var reader io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		reader = transform.NewReader(bytes.NewReader(raw), japanese.ShiftJIS.NewDecoder())
	}

	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, ErrInvalid("failed to read csv header")
	}
	if !headerMatches(header) {
		return nil, ErrInvalid("csv header must be: " + strings.Join(csvHeader, ","))
	}

	var rows []importRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rows = append(rows, importRow{err: err})
			continue
		}
		rows = append(rows, parseItemRecord(record))
	}
	return rows, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(csvHeader) {
		return false
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(h), csvHeader[i]) {
			return false
		}
	}
	return true
}

func parseItemRecord(record []string) importRow {
	if len(record) != len(csvHeader) {
		return importRow{err: fmt.Errorf("expected %d columns, got %d", len(csvHeader), len(record))}
	}

	total, err := strconv.ParseUint(strings.TrimSpace(record[3]), 10, 32)
	if err != nil {
		return importRow{err: fmt.Errorf("invalid total_quantity: %q", record[3])}
	}
	buffer := uint64(0)
	if v := strings.TrimSpace(record[4]); v != "" {
		buffer, err = strconv.ParseUint(v, 10, 32)
		if err != nil {
			return importRow{err: fmt.Errorf("invalid buffer_quantity: %q", record[4])}
		}
	}

	req := CreateItemRequest{
		StorageCode:    strings.TrimSpace(record[0]),
		Name:           strings.TrimSpace(record[1]),
		TotalQuantity:  uint(total),
		BufferQuantity: uint(buffer),
	}
	if desc := strings.TrimSpace(record[2]); desc != "" {
		req.Description = &desc
	}
	return importRow{req: req}
}
