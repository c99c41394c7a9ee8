package items

import "time"

// ===== Requests =====

type CreateItemRequest struct {
	StorageCode    string  `json:"storage_code" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	Description    *string `json:"description,omitempty"`
	TotalQuantity  uint    `json:"total_quantity"`
	BufferQuantity uint    `json:"buffer_quantity"` // デフォルト0
	Notes          *string `json:"notes,omitempty"`  // 初回入庫ログに記録する
}

type AdjustStockRequest struct {
	Action   string  `json:"action" binding:"required"`   // RECEIVED | DAMAGED | LOST | CORRECTION_ADD | CORRECTION_SUB
	Quantity int     `json:"quantity" binding:"required"` // 正の数。符号は action から導出。
	Notes    *string `json:"notes,omitempty"`
}

// ===== Responses =====

type ItemResponse struct {
	ItemID             uint64    `json:"item_id"`
	ItemULID           string    `json:"item_ulid"`
	StorageCode        string    `json:"storage_code"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	TotalQuantity      uint      `json:"total_quantity"`
	BufferQuantity     uint      `json:"buffer_quantity"`
	CheckedOutQuantity uint      `json:"checked_out_quantity"`
	AvailableQuantity  int64     `json:"available_quantity"` // 符号付き。クランプは表示側で行う。
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ItemLogResponse struct {
	ItemLogID      uint64    `json:"item_log_id"`
	ItemID         uint64    `json:"item_id"`
	UserID         *string   `json:"user_id,omitempty"`
	Action         string    `json:"action"`
	QuantityChange int       `json:"quantity_change"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type AvailabilityResponse struct {
	ItemID             uint64 `json:"item_id"`
	TotalQuantity      uint   `json:"total_quantity"`
	BufferQuantity     uint   `json:"buffer_quantity"`
	CheckedOutQuantity uint   `json:"checked_out_quantity"`
	AvailableQuantity  int64  `json:"available_quantity"`
}

// ===== CSV import =====

type ImportItemsResponse struct {
	Total   int               `json:"total"`
	OkCount int               `json:"ok_count"`
	NgCount int               `json:"ng_count"`
	Results []ImportRowResult `json:"results"`
}

type ImportRowResult struct {
	Row         int     `json:"row"` // ヘッダ行を除いた1始まりのデータ行番号
	Ok          bool    `json:"ok"`
	Error       *string `json:"error,omitempty"`
	ItemID      *uint64 `json:"item_id,omitempty"`
	StorageCode *string `json:"storage_code,omitempty"`
	Name        *string `json:"name,omitempty"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type ItemSearchQuery struct {
	StorageCode *string
	Name        *string // 部分一致
}

func toItemResponse(r itemRow) ItemResponse {
	return ItemResponse{
		ItemID:             r.ItemID,
		ItemULID:           r.ItemULID,
		StorageCode:        r.StorageCode,
		Name:               r.Name,
		Description:        r.Description,
		TotalQuantity:      r.TotalQuantity,
		BufferQuantity:     r.BufferQuantity,
		CheckedOutQuantity: r.CheckedOut,
		AvailableQuantity:  r.AvailableQuantity(),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func toItemLogResponse(l ItemLog) ItemLogResponse {
	resp := ItemLogResponse{
		ItemLogID:      l.ItemLogID,
		ItemID:         l.ItemID,
		Action:         string(l.Action),
		QuantityChange: l.QuantityChange,
		CreatedAt:      l.CreatedAt,
	}
	if l.UserID.Valid {
		v := l.UserID.String
		resp.UserID = &v
	}
	if l.Notes.Valid {
		v := l.Notes.String
		resp.Notes = &v
	}
	return resp
}
