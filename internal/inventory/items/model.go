package items

import (
	"database/sql"
	"time"
)

// Item は items テーブルの1行を表す。
// total_quantity は adjustStock 経由でのみ変化する（直接SETしない）。
type Item struct {
	ItemID         uint64
	ItemULID       string
	StorageCode    string // 12桁（section 4 + space 4 + item 4）。バーコード値と同一。
	Name           string
	Description    string
	TotalQuantity  uint
	BufferQuantity uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// itemRow: 読み取り時に貸出中数量を合算した行
type itemRow struct {
	Item
	CheckedOut uint // 未返却checkoutのquantity合計
}

// AvailableQuantity: total - checked_out - buffer。
// 符号付きで返す（負になり得る）。丸めは表示側の責務。
func (r itemRow) AvailableQuantity() int64 {
	return int64(r.TotalQuantity) - int64(r.CheckedOut) - int64(r.BufferQuantity)
}

// ItemLog は item_logs テーブルの1行（追記のみ、更新・削除なし）
type ItemLog struct {
	ItemLogID      uint64
	ItemID         uint64
	UserID         sql.NullString // ユーザ削除時は NULL になる
	Action         StockAction
	QuantityChange int // 符号付き。actionから導出される。
	Notes          sql.NullString
	CreatedAt      time.Time
}

// StockAction は在庫調整の種別
type StockAction string

const (
	ActionReceived      StockAction = "RECEIVED"
	ActionDamaged       StockAction = "DAMAGED"
	ActionLost          StockAction = "LOST"
	ActionCorrectionAdd StockAction = "CORRECTION_ADD"
	ActionCorrectionSub StockAction = "CORRECTION_SUB"
)

// Sign: 加算なら+1、減算なら-1、未知なら0
func (a StockAction) Sign() int {
	switch a {
	case ActionReceived, ActionCorrectionAdd:
		return 1
	case ActionDamaged, ActionLost, ActionCorrectionSub:
		return -1
	default:
		return 0
	}
}

func (a StockAction) Valid() bool { return a.Sign() != 0 }
