package borrowers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

const borrowerCols = `borrower_id, borrower_ulid, admission_number, name, class_name, section_name, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, m *Borrower, now time.Time) error {
	const q = `
	INSERT INTO borrowers
	(borrower_ulid, admission_number, name, class_name, section_name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		m.BorrowerULID, m.AdmissionNumber, m.Name, m.ClassName, m.SectionName, now, now,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrConflict("admission_number already exists")
		}
		return err
	}
	id, _ := res.LastInsertId()
	m.BorrowerID = uint64(id)
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*Borrower, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+borrowerCols+` FROM borrowers WHERE borrower_id = ?`, id))
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Borrower, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+borrowerCols+` FROM borrowers WHERE borrower_ulid = ?`, ulid))
}

func (s *Store) GetByAdmissionNumber(ctx context.Context, number string) (*Borrower, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+borrowerCols+` FROM borrowers WHERE admission_number = ?`, number))
}

func (s *Store) scanOne(row *sql.Row) (*Borrower, error) {
	var m Borrower
	err := row.Scan(
		&m.BorrowerID, &m.BorrowerULID, &m.AdmissionNumber,
		&m.Name, &m.ClassName, &m.SectionName, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("borrower not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) List(ctx context.Context, f BorrowerFilter, p Page) ([]Borrower, int64, error) {
	where := strings.Builder{}
	args := []any{}
	if f.AdmissionNumber != nil {
		where.WriteString(` AND admission_number = ?`)
		args = append(args, *f.AdmissionNumber)
	}
	if f.Name != nil {
		where.WriteString(` AND name LIKE ?`)
		args = append(args, "%"+*f.Name+"%")
	}
	if f.ClassName != nil {
		where.WriteString(` AND class_name = ?`)
		args = append(args, *f.ClassName)
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := fmt.Sprintf(`SELECT `+borrowerCols+` FROM borrowers WHERE 1=1%s ORDER BY borrower_id %s LIMIT ? OFFSET ?`,
		where.String(), order)
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Borrower
	for rows.Next() {
		var m Borrower
		if err := rows.Scan(
			&m.BorrowerID, &m.BorrowerULID, &m.AdmissionNumber,
			&m.Name, &m.ClassName, &m.SectionName, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM borrowers WHERE 1=1`+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Update(ctx context.Context, id uint64, req UpdateBorrowerRequest, now time.Time) (int64, error) {
	set := strings.Builder{}
	args := []any{}
	if req.Name != nil {
		set.WriteString(`name = ?, `)
		args = append(args, strings.ToUpper(strings.TrimSpace(*req.Name)))
	}
	if req.ClassName != nil {
		set.WriteString(`class_name = ?, `)
		args = append(args, strings.ToUpper(strings.TrimSpace(*req.ClassName)))
	}
	if req.SectionName != nil {
		set.WriteString(`section_name = ?, `)
		args = append(args, strings.ToUpper(strings.TrimSpace(*req.SectionName)))
	}
	if set.Len() == 0 {
		return 0, ErrInvalid("no fields to update")
	}
	set.WriteString(`updated_at = ?`)
	args = append(args, now, id)

	res, err := s.db.ExecContext(ctx, `UPDATE borrowers SET `+set.String()+` WHERE borrower_id = ?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete: checkouts側のFKが ON DELETE RESTRICT なので、
// 履歴が1件でもあればMySQLの1451で落ちる。それを台帳のエラーに写像する。
func (s *Store) Delete(ctx context.Context, id uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM borrowers WHERE borrower_id = ?`, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 {
			return 0, ErrBorrowerReferenced()
		}
		return 0, err
	}
	return res.RowsAffected()
}
