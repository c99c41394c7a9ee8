package borrowers

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	mysql "github.com/go-sql-driver/mysql"
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

var borrowerColList = []string{
	"borrower_id", "borrower_ulid", "admission_number",
	"name", "class_name", "section_name", "created_at", "updated_at",
}

func borrowerRow(id uint64, admission string) *sqlmock.Rows {
	return sqlmock.NewRows(borrowerColList).
		AddRow(id, "01BORULID00000000000000000", admission, "TEST STUDENT", "2-A", "SCIENCE", testNow, testNow)
}

func TestCreateBorrowerUppercasesIdentity(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(`INSERT INTO borrowers`).
		WithArgs(sqlmock.AnyArg(), "T001", "TARO YAMADA", "2-A", "SCIENCE", testNow, testNow).
		WillReturnResult(sqlmock.NewResult(3, 1))

	res, err := svc.CreateBorrower(context.Background(), CreateBorrowerRequest{
		AdmissionNumber: " t001 ",
		Name:            "taro yamada",
		ClassName:       "2-a",
		SectionName:     "science",
	})
	if err != nil {
		t.Fatalf("CreateBorrower: %v", err)
	}
	if res.BorrowerID != 3 {
		t.Errorf("expected borrower_id 3, got %d", res.BorrowerID)
	}
	if res.AdmissionNumber != "T001" || res.Name != "TARO YAMADA" {
		t.Errorf("identity fields must be uppercased: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateBorrowerDuplicateAdmissionNumber(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(`INSERT INTO borrowers`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := svc.CreateBorrower(context.Background(), CreateBorrowerRequest{
		AdmissionNumber: "T001",
		Name:            "TARO",
	})
	if code := apiCode(t, err); code != CodeConflict {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestCreateBorrowerRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateBorrower(context.Background(), CreateBorrowerRequest{Name: "TARO"})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", code)
	}
}

func TestGetBorrowerResolvesAdmissionNumber(t *testing.T) {
	svc, mock := newTestService(t)

	// 数値でもULIDでもないキーは学籍番号（大文字化して照合）
	mock.ExpectQuery(`FROM borrowers WHERE admission_number = \?`).
		WithArgs("T001").
		WillReturnRows(borrowerRow(3, "T001"))

	res, err := svc.GetBorrower(context.Background(), "t001")
	if err != nil {
		t.Fatalf("GetBorrower: %v", err)
	}
	if res.AdmissionNumber != "T001" {
		t.Errorf("unexpected borrower: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetBorrowerResolvesNumericID(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM borrowers WHERE borrower_id = \?`).
		WithArgs(3).
		WillReturnRows(borrowerRow(3, "T001"))

	if _, err := svc.GetBorrower(context.Background(), "3"); err != nil {
		t.Fatalf("GetBorrower: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteBorrowerRejectedWhenReferenced(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM borrowers WHERE borrower_id = \?`).
		WithArgs(3).
		WillReturnRows(borrowerRow(3, "T001"))
	// checkouts側FKは ON DELETE RESTRICT
	mock.ExpectExec(`DELETE FROM borrowers`).
		WithArgs(3).
		WillReturnError(&mysql.MySQLError{Number: 1451, Message: "foreign key constraint fails"})

	err := svc.DeleteBorrower(context.Background(), "3")
	if code := apiCode(t, err); code != CodeBorrowerReferenced {
		t.Fatalf("expected BORROWER_REFERENCED, got %s", code)
	}
}

func TestUpdateBorrowerRequiresFields(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM borrowers WHERE borrower_id = \?`).
		WithArgs(3).
		WillReturnRows(borrowerRow(3, "T001"))

	_, err := svc.UpdateBorrower(context.Background(), "3", UpdateBorrowerRequest{})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", code)
	}
}
