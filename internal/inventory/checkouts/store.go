package checkouts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"sherlock-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// ---- Transactional Methods ----

// ExecCreateCheckout: 貸出作成の全手順を1Txで行う。
// item行ロック → 確定済み状態から利用可能数を算出 → 数量チェック → INSERT。
// 同一itemへの同時貸出は行ロックで直列化されるので、二重承認は起きない。
func (s *Store) ExecCreateCheckout(ctx context.Context, m *Checkout) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return s.createCheckoutTx(ctx, tx, m)
	})
}

// ExecCreateCheckoutBatch: カート一括貸出。全明細が通るか、1件も残らないか。
// item行は明細順にロックする（呼び出し側で順序は固定済み）。
func (s *Store) ExecCreateCheckoutBatch(ctx context.Context, ms []*Checkout) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, m := range ms {
			if err := s.createCheckoutTx(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) createCheckoutTx(ctx context.Context, tx db.DBTX, m *Checkout) error {
	total, buffer, err := lockItemRow(ctx, tx, m.ItemID)
	if err != nil {
		return err
	}

	checkedOut, err := sumOpenCheckouts(ctx, tx, m.ItemID)
	if err != nil {
		return err
	}

	// 符号付きで算出する。負（buffer+貸出が在庫超過）なら当然新規貸出は不可。
	available := int64(total) - int64(checkedOut) - int64(buffer)
	if int64(m.Quantity) > available {
		return ErrInsufficientAvailability(m.Quantity, available)
	}

	const q = `
	INSERT INTO checkouts
	(checkout_ulid, item_id, borrower_id, quantity, checked_out_at, due_at, lent_by_id, note)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		m.CheckoutULID, m.ItemID, m.BorrowerID, m.Quantity,
		m.CheckedOutAt, m.DueAt,
		nullStrOrNil(m.LentByID), nullStrOrNil(m.Note),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 {
			return ErrInvalid("borrower does not exist")
		}
		return err
	}
	id, _ := res.LastInsertId()
	m.CheckoutID = uint64(id)
	return nil
}

// checkInResult: ExecCreateCheckIn の結果。checkout は処理後の状態。
type checkInResult struct {
	Closed      bool
	Checkout    Checkout
	ReturnedSum uint // 今回の返却を含む累計
}

// ExecCreateCheckIn: 返却処理の全手順を1Txで行う。
//  1. checkout行ロック、CLOSED なら拒否
//  2. 累計返却数と照合して過剰返却を拒否
//  3. checkins へ追記
//  4. DAMAGED なら item の在庫から恒久的に除去し監査ログを残す
//  5. 全量返却なら returned_at を設定して CLOSED にする
func (s *Store) ExecCreateCheckIn(ctx context.Context, m *CheckIn, actorID *string, now time.Time) (*checkInResult, error) {
	var out checkInResult
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		co, err := lockCheckoutRow(ctx, tx, m.CheckoutID)
		if err != nil {
			return err
		}
		if !co.Open() {
			return ErrCheckoutClosed()
		}

		returned, err := sumReturns(ctx, tx, m.CheckoutID)
		if err != nil {
			return err
		}
		remaining := co.Quantity - returned
		if m.QuantityReturned > remaining {
			return ErrOverReturn(remaining)
		}

		if err := insertCheckIn(ctx, tx, m); err != nil {
			return err
		}

		if m.Condition == ConditionDamaged {
			// 破損返却分は在庫に戻さず total から恒久的に除去する
			note := fmt.Sprintf("damaged on return: checkout %s, borrower #%d", co.CheckoutULID, co.BorrowerID)
			if err := applyDamagedStock(ctx, tx, co.ItemID, m.QuantityReturned, actorID, note, now); err != nil {
				return err
			}
		}

		newReturned := returned + m.QuantityReturned
		if newReturned == co.Quantity {
			if err := closeCheckout(ctx, tx, co.CheckoutID, now); err != nil {
				return err
			}
			co.ReturnedAt = sql.NullTime{Time: now, Valid: true}
			out.Closed = true
		}

		out.Checkout = *co
		out.ReturnedSum = newReturned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// lockItemRow: items行の FOR UPDATE ロック（在庫調整側と同じ行で直列化する）
func lockItemRow(ctx context.Context, tx db.DBTX, itemID uint64) (total, buffer uint, err error) {
	const q = `SELECT total_quantity, buffer_quantity FROM items WHERE item_id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, q, itemID).Scan(&total, &buffer)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound("item not found")
	}
	if err != nil {
		return 0, 0, err
	}
	return total, buffer, nil
}

func sumOpenCheckouts(ctx context.Context, tx db.DBTX, itemID uint64) (uint, error) {
	const q = `SELECT COALESCE(SUM(quantity),0) FROM checkouts WHERE item_id = ? AND returned_at IS NULL`
	var sum uint
	if err := tx.QueryRowContext(ctx, q, itemID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func lockCheckoutRow(ctx context.Context, tx db.DBTX, checkoutID uint64) (*Checkout, error) {
	const q = `
	SELECT checkout_id, checkout_ulid, item_id, borrower_id, quantity, checked_out_at, due_at, returned_at, lent_by_id, note
	FROM checkouts WHERE checkout_id = ? FOR UPDATE`
	var m Checkout
	err := tx.QueryRowContext(ctx, q, checkoutID).Scan(
		&m.CheckoutID, &m.CheckoutULID, &m.ItemID, &m.BorrowerID, &m.Quantity,
		&m.CheckedOutAt, &m.DueAt, &m.ReturnedAt, &m.LentByID, &m.Note,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("checkout not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func sumReturns(ctx context.Context, tx db.DBTX, checkoutID uint64) (uint, error) {
	const q = `SELECT COALESCE(SUM(quantity_returned),0) FROM checkins WHERE checkout_id = ?`
	var sum uint
	if err := tx.QueryRowContext(ctx, q, checkoutID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func insertCheckIn(ctx context.Context, tx db.DBTX, m *CheckIn) error {
	const q = `
	INSERT INTO checkins
	(checkin_ulid, checkout_id, quantity_returned, return_condition, processed_by_id, returned_at, note)
	VALUES
	(?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		m.CheckInULID, m.CheckoutID, m.QuantityReturned, string(m.Condition),
		nullStrOrNil(m.ProcessedByID), m.ReturnedAt, nullStrOrNil(m.Note),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.CheckInID = uint64(id)
	return nil
}

// applyDamagedStock: items.total_quantity の減算と item_logs への追記。
// 在庫以上の除去は拒否（このTxごと巻き戻る）。
func applyDamagedStock(ctx context.Context, tx db.DBTX, itemID uint64, qty uint, actorID *string, note string, now time.Time) error {
	total, _, err := lockItemRow(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if qty > total {
		return ErrInsufficientStock(total)
	}

	const uq = `UPDATE items SET total_quantity = ?, updated_at = ? WHERE item_id = ?`
	res, err := tx.ExecContext(ctx, uq, total-qty, now, itemID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrInternal("failed to update items.total_quantity")
	}

	const lq = `
	INSERT INTO item_logs (item_id, user_id, action, quantity_change, notes, created_at)
	VALUES (?, ?, 'DAMAGED', ?, ?, ?)`
	_, err = tx.ExecContext(ctx, lq, itemID, actorPtrOrNil(actorID), -int(qty), note, now)
	return err
}

// closeCheckout: returned_at を1回だけ設定する。既に設定済みなら何もしない想定だが
// lockCheckoutRow 側で CLOSED は先に弾いているので、0行更新は内部不整合。
func closeCheckout(ctx context.Context, tx db.DBTX, checkoutID uint64, now time.Time) error {
	const q = `UPDATE checkouts SET returned_at = ? WHERE checkout_id = ? AND returned_at IS NULL`
	res, err := tx.ExecContext(ctx, q, now, checkoutID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrInternal("failed to close checkout")
	}
	return nil
}

// ---- Queries ----

type checkoutRow struct {
	Checkout
	StorageCode string
	ItemName    string
	ReturnedSum uint
}

const checkoutSelect = `
	SELECT
	c.checkout_id, c.checkout_ulid, c.item_id, c.borrower_id, c.quantity,
	c.checked_out_at, c.due_at, c.returned_at, c.lent_by_id, c.note,
	i.storage_code, i.name,
	COALESCE(r.sum_qty,0) AS returned_sum
	FROM checkouts c
	JOIN items i ON i.item_id = c.item_id
	LEFT JOIN (
	SELECT checkout_id, SUM(quantity_returned) AS sum_qty FROM checkins GROUP BY checkout_id
	) r ON r.checkout_id = c.checkout_id`

func scanCheckoutRow(row *sql.Row) (*checkoutRow, error) {
	var r checkoutRow
	err := row.Scan(
		&r.CheckoutID, &r.CheckoutULID, &r.ItemID, &r.BorrowerID, &r.Quantity,
		&r.CheckedOutAt, &r.DueAt, &r.ReturnedAt, &r.LentByID, &r.Note,
		&r.StorageCode, &r.ItemName, &r.ReturnedSum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("checkout not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetCheckoutRow(ctx context.Context, checkoutID uint64) (*checkoutRow, error) {
	return scanCheckoutRow(s.db.QueryRowContext(ctx, checkoutSelect+` WHERE c.checkout_id = ?`, checkoutID))
}

func (s *Store) GetCheckoutRowByULID(ctx context.Context, ulid string) (*checkoutRow, error) {
	return scanCheckoutRow(s.db.QueryRowContext(ctx, checkoutSelect+` WHERE c.checkout_ulid = ?`, ulid))
}

func (s *Store) ListCheckouts(ctx context.Context, f CheckoutFilter, p Page, now time.Time) ([]checkoutRow, int64, error) {
	where := strings.Builder{}
	args := []any{}
	if f.BorrowerID != nil {
		where.WriteString(` AND c.borrower_id = ?`)
		args = append(args, *f.BorrowerID)
	}
	if f.ItemID != nil {
		where.WriteString(` AND c.item_id = ?`)
		args = append(args, *f.ItemID)
	}
	if f.Returned != nil {
		if *f.Returned {
			where.WriteString(` AND c.returned_at IS NOT NULL`)
		} else {
			where.WriteString(` AND c.returned_at IS NULL`)
		}
	}
	if f.OnlyOutstanding {
		where.WriteString(` AND COALESCE(r.sum_qty,0) < c.quantity`)
	}
	if f.OverdueOnly {
		where.WriteString(` AND c.returned_at IS NULL AND c.due_at < ?`)
		args = append(args, now)
	}
	if f.From != nil {
		where.WriteString(` AND c.checked_out_at >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where.WriteString(` AND c.checked_out_at < ?`)
		args = append(args, *f.To)
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

	q := checkoutSelect + ` WHERE 1=1` + where.String() +
		fmt.Sprintf(` ORDER BY c.checked_out_at %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []checkoutRow
	for rows.Next() {
		var r checkoutRow
		if err := rows.Scan(
			&r.CheckoutID, &r.CheckoutULID, &r.ItemID, &r.BorrowerID, &r.Quantity,
			&r.CheckedOutAt, &r.DueAt, &r.ReturnedAt, &r.LentByID, &r.Note,
			&r.StorageCode, &r.ItemName, &r.ReturnedSum,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := `SELECT COUNT(*) FROM checkouts c
	JOIN items i ON i.item_id = c.item_id
	LEFT JOIN (SELECT checkout_id, SUM(quantity_returned) sum_qty FROM checkins GROUP BY checkout_id) r ON r.checkout_id = c.checkout_id
	WHERE 1=1` + where.String()
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListCheckIns(ctx context.Context, f CheckInFilter, p Page) ([]CheckIn, int64, error) {
	where := strings.Builder{}
	args := []any{}
	if f.CheckoutID != nil {
		where.WriteString(` AND ci.checkout_id = ?`)
		args = append(args, *f.CheckoutID)
	}
	if f.ItemID != nil {
		where.WriteString(` AND c.item_id = ?`)
		args = append(args, *f.ItemID)
	}
	if f.Condition != nil {
		where.WriteString(` AND ci.return_condition = ?`)
		args = append(args, string(*f.Condition))
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

	q := fmt.Sprintf(`
	SELECT ci.checkin_id, ci.checkin_ulid, ci.checkout_id, ci.quantity_returned, ci.return_condition, ci.processed_by_id, ci.returned_at, ci.note
	FROM checkins ci
	JOIN checkouts c ON c.checkout_id = ci.checkout_id
	WHERE 1=1%s ORDER BY ci.checkin_id %s LIMIT ? OFFSET ?`, where.String(), order)

	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []CheckIn
	for rows.Next() {
		var m CheckIn
		if err := rows.Scan(&m.CheckInID, &m.CheckInULID, &m.CheckoutID, &m.QuantityReturned, &m.Condition, &m.ProcessedByID, &m.ReturnedAt, &m.Note); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := `SELECT COUNT(*) FROM checkins ci JOIN checkouts c ON c.checkout_id = ci.checkout_id WHERE 1=1` + where.String()
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ResolveItemID: ULID または 12桁収納コード → item_id
func (s *Store) ResolveItemID(ctx context.Context, key string) (uint64, error) {
	const q = `SELECT item_id FROM items WHERE item_ulid = ? OR storage_code = ? LIMIT 1`
	var id uint64
	if err := s.db.QueryRowContext(ctx, q, key, key).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound("item not found")
		}
		return 0, err
	}
	return id, nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func actorPtrOrNil(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}
