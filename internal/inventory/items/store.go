package items

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

// 未返却checkoutのquantity合計をぶら下げた items の SELECT 句
const itemSelect = `
SELECT i.item_id, i.item_ulid, i.storage_code, i.name, i.description,
       i.total_quantity, i.buffer_quantity, i.created_at, i.updated_at,
       COALESCE(o.sum_qty, 0) AS checked_out
FROM items i
LEFT JOIN (
    SELECT item_id, SUM(quantity) AS sum_qty
    FROM checkouts
    WHERE returned_at IS NULL
    GROUP BY item_id
) o ON o.item_id = i.item_id`

func scanItemRow(row *sql.Row) (*itemRow, error) {
	var r itemRow
	err := row.Scan(
		&r.ItemID, &r.ItemULID, &r.StorageCode, &r.Name, &r.Description,
		&r.TotalQuantity, &r.BufferQuantity, &r.CreatedAt, &r.UpdatedAt,
		&r.CheckedOut,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("item not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetItemRow(ctx context.Context, itemID uint64) (*itemRow, error) {
	return scanItemRow(s.db.QueryRowContext(ctx, itemSelect+` WHERE i.item_id = ?`, itemID))
}

func (s *Store) GetItemRowByULID(ctx context.Context, ulid string) (*itemRow, error) {
	return scanItemRow(s.db.QueryRowContext(ctx, itemSelect+` WHERE i.item_ulid = ?`, ulid))
}

func (s *Store) GetItemRowByStorageCode(ctx context.Context, code string) (*itemRow, error) {
	return scanItemRow(s.db.QueryRowContext(ctx, itemSelect+` WHERE i.storage_code = ?`, code))
}

// ---- Transactional Methods ----

// ExecCreateItem: 物品登録。初期在庫が正なら RECEIVED の監査ログも同一Txで追記する。
func (s *Store) ExecCreateItem(ctx context.Context, m *Item, actorID *string, notes *string, now time.Time) error {
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
	INSERT INTO items
	(item_ulid, storage_code, name, description, total_quantity, buffer_quantity, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q,
			m.ItemULID, m.StorageCode, m.Name, m.Description,
			m.TotalQuantity, m.BufferQuantity, now, now,
		)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		m.ItemID = uint64(id)
		m.CreatedAt = now
		m.UpdatedAt = now

		if m.TotalQuantity > 0 {
			return insertItemLog(ctx, tx, m.ItemID, actorID, ActionReceived, int(m.TotalQuantity), notes, now)
		}
		return nil
	})
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrConflict("storage_code already exists")
		}
		return err
	}
	return nil
}

// ExecAdjustStock: 在庫調整の全手順を1Txで行う。
// item行をロック → 減算時は在庫チェック → total更新 → 監査ログ追記。
func (s *Store) ExecAdjustStock(ctx context.Context, itemID uint64, action StockAction, qty uint, actorID *string, notes *string, now time.Time) (*Item, error) {
	var out Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		cur, err := lockItemRow(ctx, tx, itemID)
		if err != nil {
			return err
		}

		delta := int(qty) * action.Sign()
		if delta < 0 && qty > cur.TotalQuantity {
			return ErrInsufficientStock(cur.TotalQuantity)
		}

		newTotal := uint(int(cur.TotalQuantity) + delta)
		if err := updateItemTotal(ctx, tx, itemID, newTotal, now); err != nil {
			return err
		}
		if err := insertItemLog(ctx, tx, itemID, actorID, action, delta, notes, now); err != nil {
			return err
		}

		out = *cur
		out.TotalQuantity = newTotal
		out.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// lockItemRow: item行の FOR UPDATE ロック。
// 同一itemに対する調整・貸出の同時実行はここで直列化される。
func lockItemRow(ctx context.Context, tx db.DBTX, itemID uint64) (*Item, error) {
	const q = `
	SELECT item_id, item_ulid, storage_code, name, description, total_quantity, buffer_quantity, created_at, updated_at
	FROM items WHERE item_id = ? FOR UPDATE`
	var m Item
	err := tx.QueryRowContext(ctx, q, itemID).Scan(
		&m.ItemID, &m.ItemULID, &m.StorageCode, &m.Name, &m.Description,
		&m.TotalQuantity, &m.BufferQuantity, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("item not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func updateItemTotal(ctx context.Context, tx db.DBTX, itemID uint64, total uint, now time.Time) error {
	const q = `UPDATE items SET total_quantity = ?, updated_at = ? WHERE item_id = ?`
	res, err := tx.ExecContext(ctx, q, total, now, itemID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrInternal("failed to update items.total_quantity")
	}
	return nil
}

func insertItemLog(ctx context.Context, tx db.DBTX, itemID uint64, actorID *string, action StockAction, delta int, notes *string, now time.Time) error {
	const q = `
	INSERT INTO item_logs (item_id, user_id, action, quantity_change, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, itemID, strPtrOrNil(actorID), string(action), delta, strPtrOrNil(notes), now)
	return err
}

// ---- Queries ----

func (s *Store) ListItems(ctx context.Context, f ItemSearchQuery, p Page) ([]itemRow, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(itemSelect)
	sb.WriteString(` WHERE 1=1`)

	args := []any{}
	where := strings.Builder{}
	if f.StorageCode != nil {
		where.WriteString(` AND i.storage_code = ?`)
		args = append(args, *f.StorageCode)
	}
	if f.Name != nil {
		where.WriteString(` AND i.name LIKE ?`)
		args = append(args, "%"+*f.Name+"%")
	}
	sb.WriteString(where.String())

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY i.item_id %s`, order))
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []itemRow
	for rows.Next() {
		var r itemRow
		if err := rows.Scan(
			&r.ItemID, &r.ItemULID, &r.StorageCode, &r.Name, &r.Description,
			&r.TotalQuantity, &r.BufferQuantity, &r.CreatedAt, &r.UpdatedAt,
			&r.CheckedOut,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countArgs := args[:len(args)-2]
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items i WHERE 1=1`+where.String(), countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListItemLogs(ctx context.Context, itemID uint64, p Page) ([]ItemLog, int64, error) {
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
	SELECT item_log_id, item_id, user_id, action, quantity_change, notes, created_at
	FROM item_logs WHERE item_id = ? ORDER BY item_log_id %s LIMIT ? OFFSET ?`, order)

	rows, err := s.db.QueryContext(ctx, q, itemID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []ItemLog
	for rows.Next() {
		var l ItemLog
		if err := rows.Scan(&l.ItemLogID, &l.ItemID, &l.UserID, &l.Action, &l.QuantityChange, &l.Notes, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_logs WHERE item_id = ?`, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func strPtrOrNil(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}
