package items

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestParseItemsCSV(t *testing.T) {
	csv := strings.Join([]string{
		"storage_code,name,description,total_quantity,buffer_quantity",
		"100000000001,beaker,glass 100ml,20,5",
		"100000000002,flask,,3,",
	}, "\n")

	rows, err := parseItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parseItemsCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	r0 := rows[0]
	if r0.err != nil {
		t.Fatalf("row 0: %v", r0.err)
	}
	if r0.req.StorageCode != "100000000001" || r0.req.Name != "beaker" {
		t.Errorf("row 0 unexpected: %+v", r0.req)
	}
	if r0.req.TotalQuantity != 20 || r0.req.BufferQuantity != 5 {
		t.Errorf("row 0 quantities unexpected: %+v", r0.req)
	}
	if r0.req.Description == nil || *r0.req.Description != "glass 100ml" {
		t.Errorf("row 0 description unexpected: %+v", r0.req.Description)
	}

	r1 := rows[1]
	if r1.err != nil {
		t.Fatalf("row 1: %v", r1.err)
	}
	// 空の buffer_quantity は0、空の description は未設定
	if r1.req.BufferQuantity != 0 || r1.req.Description != nil {
		t.Errorf("row 1 unexpected: %+v", r1.req)
	}
}

func TestParseItemsCSVWithBOM(t *testing.T) {
	csv := "\xEF\xBB\xBF" + strings.Join([]string{
		"storage_code,name,description,total_quantity,buffer_quantity",
		"100000000001,beaker,,1,0",
	}, "\n")

	rows, err := parseItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parseItemsCSV: %v", err)
	}
	if len(rows) != 1 || rows[0].err != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseItemsCSVDecodesShiftJIS(t *testing.T) {
	csv := strings.Join([]string{
		"storage_code,name,description,total_quantity,buffer_quantity",
		"100000000001,ビーカー,ガラス製,10,2",
	}, "\n")

	// Excel出力を模して cp932 にエンコードした入力
	encoded, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), csv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rows, perr := parseItemsCSV(strings.NewReader(encoded))
	if perr != nil {
		t.Fatalf("parseItemsCSV: %v", perr)
	}
	if len(rows) != 1 || rows[0].err != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].req.Name != "ビーカー" {
		t.Errorf("expected decoded name, got %q", rows[0].req.Name)
	}
}

func TestParseItemsCSVBadRowsReportedPerRow(t *testing.T) {
	csv := strings.Join([]string{
		"storage_code,name,description,total_quantity,buffer_quantity",
		"100000000001,beaker,,abc,0",
		"100000000002,flask,,2,1",
	}, "\n")

	rows, err := parseItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parseItemsCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].err == nil {
		t.Error("row with invalid total_quantity must carry an error")
	}
	if rows[1].err != nil {
		t.Errorf("valid row must not carry an error: %v", rows[1].err)
	}
}

func TestParseItemsCSVRejectsWrongHeader(t *testing.T) {
	csv := "code,name\n1,beaker\n"
	if _, err := parseItemsCSV(strings.NewReader(csv)); err == nil {
		t.Fatal("expected header error")
	}
}

func TestParseItemsCSVRejectsEmptyInput(t *testing.T) {
	if _, err := parseItemsCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}
