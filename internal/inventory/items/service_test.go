package items

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDGen struct{ id string }

func (g fixedIDGen) NewULID(time.Time) string { return g.id }

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db)
	svc.clock = fixedClock{t: testNow}
	svc.id = fixedIDGen{id: "01TESTULID0000000000000000"}
	return svc, mock
}

func apiCode(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("expected APIError, got %v", err)
	}
	return api.Code
}

var itemCols = []string{
	"item_id", "item_ulid", "storage_code", "name", "description",
	"total_quantity", "buffer_quantity", "created_at", "updated_at",
}

func itemRowCols() []string { return append(append([]string{}, itemCols...), "checked_out") }

func expectResolveItem(mock sqlmock.Sqlmock, itemID uint64, total, buffer, checkedOut uint) {
	mock.ExpectQuery(`SELECT i\.item_id, .* FROM items i LEFT JOIN .* WHERE i\.item_id = \?`).
		WithArgs(itemID).
		WillReturnRows(sqlmock.NewRows(itemRowCols()).
			AddRow(itemID, "01ITEMULID0000000000000000", "100000000001", "beaker", "",
				total, buffer, testNow, testNow, checkedOut))
}

func TestAdjustStockReceivedAddsToTotal(t *testing.T) {
	svc, mock := newTestService(t)

	expectResolveItem(mock, 1, 10, 0, 3)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM items WHERE item_id = \? FOR UPDATE`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(1, "01ITEMULID0000000000000000", "100000000001", "beaker", "", 10, 0, testNow, testNow))
	mock.ExpectExec(`UPDATE items SET total_quantity = \?`).
		WithArgs(15, testNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO item_logs`).
		WithArgs(1, "admin", "RECEIVED", 5, nil, testNow).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	actor := "admin"
	res, err := svc.AdjustStock(context.Background(), "1", AdjustStockRequest{
		Action:   "received", // 大文字化して解釈される
		Quantity: 5,
	}, &actor)
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if res.TotalQuantity != 15 {
		t.Errorf("expected total 15, got %d", res.TotalQuantity)
	}
	// 調整は貸出中数量には触れない
	if res.CheckedOutQuantity != 3 {
		t.Errorf("expected checked_out 3, got %d", res.CheckedOutQuantity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAdjustStockSubtractiveRejectsOverRemoval(t *testing.T) {
	svc, mock := newTestService(t)

	expectResolveItem(mock, 1, 10, 0, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM items WHERE item_id = \? FOR UPDATE`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(1, "01ITEMULID0000000000000000", "100000000001", "beaker", "", 10, 0, testNow, testNow))
	mock.ExpectRollback()

	_, err := svc.AdjustStock(context.Background(), "1", AdjustStockRequest{
		Action:   "LOST",
		Quantity: 11,
	}, nil)
	if code := apiCode(t, err); code != CodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %s", code)
	}
	// total更新もログ追記も起きないこと
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAdjustStockRejectsUnknownAction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AdjustStock(context.Background(), "1", AdjustStockRequest{
		Action:   "STOLEN",
		Quantity: 1,
	}, nil)
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", code)
	}
}

func TestAdjustStockRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AdjustStock(context.Background(), "1", AdjustStockRequest{
		Action:   "RECEIVED",
		Quantity: 0,
	}, nil)
	if code := apiCode(t, err); code != CodeInvalidQuantity {
		t.Fatalf("expected INVALID_QUANTITY, got %s", code)
	}
}

func TestCreateItemWritesInitialReceivedLog(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO items`).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(`INSERT INTO item_logs`).
		WithArgs(7, nil, "RECEIVED", 20, nil, testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := svc.CreateItem(context.Background(), CreateItemRequest{
		StorageCode:    "100000000001",
		Name:           "beaker",
		TotalQuantity:  20,
		BufferQuantity: 5,
	}, nil)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if res.ItemID != 7 {
		t.Errorf("expected item_id 7, got %d", res.ItemID)
	}
	if res.AvailableQuantity != 15 {
		t.Errorf("expected available 15, got %d", res.AvailableQuantity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateItemZeroStockSkipsLog(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO items`).
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectCommit()

	_, err := svc.CreateItem(context.Background(), CreateItemRequest{
		StorageCode: "100000000002",
		Name:        "flask",
	}, nil)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateItemRejectsBadStorageCode(t *testing.T) {
	svc, _ := newTestService(t)

	for _, code := range []string{"", "12345", "12345678901a", "1234567890123"} {
		_, err := svc.CreateItem(context.Background(), CreateItemRequest{
			StorageCode: code,
			Name:        "beaker",
		}, nil)
		if got := apiCode(t, err); got != CodeInvalidArgument {
			t.Fatalf("storage_code %q: expected INVALID_ARGUMENT, got %s", code, got)
		}
	}
}

func TestResolveItemPrefersStorageCodeOverID(t *testing.T) {
	svc, mock := newTestService(t)

	// 12桁の数字列は item_id としてではなく storage_code として引く
	mock.ExpectQuery(`WHERE i\.storage_code = \?`).
		WithArgs("100000000001").
		WillReturnRows(sqlmock.NewRows(itemRowCols()).
			AddRow(1, "01ITEMULID0000000000000000", "100000000001", "beaker", "", 10, 0, testNow, testNow, 0))

	if _, err := svc.GetItem(context.Background(), "100000000001"); err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAvailabilityIsSigned(t *testing.T) {
	svc, mock := newTestService(t)

	// total=5, buffer=3, 貸出中4 → 利用可能 -2（クランプしない）
	expectResolveItem(mock, 1, 5, 3, 4)

	res, err := svc.GetAvailability(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if res.AvailableQuantity != -2 {
		t.Errorf("expected available -2, got %d", res.AvailableQuantity)
	}
}

func TestStockActionSign(t *testing.T) {
	cases := []struct {
		action StockAction
		sign   int
	}{
		{ActionReceived, 1},
		{ActionCorrectionAdd, 1},
		{ActionDamaged, -1},
		{ActionLost, -1},
		{ActionCorrectionSub, -1},
		{StockAction("STOLEN"), 0},
	}
	for _, c := range cases {
		if got := c.action.Sign(); got != c.sign {
			t.Errorf("%s: expected sign %d, got %d", c.action, c.sign, got)
		}
	}
}
