package checkouts

import (
	"database/sql"
	"time"
)

// Checkout は checkouts テーブルの1行（1回の貸出取引）。
// 状態は OPEN(returned_at NULL) → CLOSED(returned_at 設定済) の一方向のみ。
// CLOSED への遷移は返却処理の中だけで起きる。
type Checkout struct {
	CheckoutID   uint64
	CheckoutULID string
	ItemID       uint64
	BorrowerID   uint64
	Quantity     uint // 作成時に確定。以後変更しない。
	CheckedOutAt time.Time
	DueAt        time.Time
	ReturnedAt   sql.NullTime   // 全量返却で初めて1回だけ設定される
	LentByID     sql.NullString // 操作ユーザ。削除済みならNULL。
	Note         sql.NullString
}

func (m Checkout) Open() bool { return !m.ReturnedAt.Valid }

// Overdue: 未返却かつ期限超過
func (m Checkout) Overdue(now time.Time) bool {
	return m.Open() && m.DueAt.Before(now)
}

// CheckIn は checkins テーブルの1行（1回の部分/全量返却）。追記のみ。
type CheckIn struct {
	CheckInID        uint64
	CheckInULID      string
	CheckoutID       uint64
	QuantityReturned uint
	Condition        Condition
	ProcessedByID    sql.NullString
	ReturnedAt       time.Time
	Note             sql.NullString
}

// Condition は返却時の状態
type Condition string

const (
	ConditionOK      Condition = "OK"
	ConditionDamaged Condition = "DAMAGED"
)

func (c Condition) Valid() bool {
	return c == ConditionOK || c == ConditionDamaged
}

// 貸出リスト取得用の検索条件
type CheckoutFilter struct {
	BorrowerID      *uint64
	ItemID          *uint64
	Returned        *bool
	OnlyOutstanding bool
	OverdueOnly     bool
	From            *time.Time
	To              *time.Time
}

type CheckInFilter struct {
	CheckoutID *uint64
	ItemID     *uint64
	Condition  *Condition
}
