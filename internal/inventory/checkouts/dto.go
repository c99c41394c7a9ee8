package checkouts

import "time"

// ===== Requests =====

type CreateCheckoutRequest struct {
	ItemID     uint64    `json:"item_id"`
	ItemKey    *string   `json:"item_key,omitempty"` // item_id が無い場合、ULID/収納コードで引き当てる
	BorrowerID uint64    `json:"borrower_id" binding:"required"`
	Quantity   int       `json:"quantity" binding:"required"`
	DueAt      time.Time `json:"due_at" binding:"required"`
	Note       *string   `json:"note,omitempty"`
}

// CreateCheckoutBatchRequest: カート一括貸出。
// lines は呼び出し側が並べた順のまま処理する（ロック順もこの順）。
type CreateCheckoutBatchRequest struct {
	BorrowerID uint64              `json:"borrower_id" binding:"required"`
	DueAt      time.Time           `json:"due_at" binding:"required"`
	Note       *string             `json:"note,omitempty"`
	Lines      []CheckoutBatchLine `json:"lines" binding:"required"`
}

type CheckoutBatchLine struct {
	ItemID   uint64 `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type CreateCheckInRequest struct {
	CheckoutID   uint64  `json:"checkout_id"`
	CheckoutULID *string `json:"checkout_ulid,omitempty"`
	Quantity     int     `json:"quantity" binding:"required"`
	Condition    string  `json:"condition" binding:"required"` // OK | DAMAGED
	Note         *string `json:"note,omitempty"`
}

// ===== Responses =====

type CheckoutResponse struct {
	CheckoutID          uint64     `json:"checkout_id"`
	CheckoutULID        string     `json:"checkout_ulid"`
	ItemID              uint64     `json:"item_id"`
	StorageCode         string     `json:"storage_code,omitempty"`
	ItemName            string     `json:"item_name,omitempty"`
	BorrowerID          uint64     `json:"borrower_id"`
	Quantity            uint       `json:"quantity"`
	ReturnedQuantity    uint       `json:"returned_quantity"`
	OutstandingQuantity uint       `json:"outstanding_quantity"`
	CheckedOutAt        time.Time  `json:"checked_out_at"`
	DueAt               time.Time  `json:"due_at"`
	ReturnedAt          *time.Time `json:"returned_at,omitempty"`
	LentByID            *string    `json:"lent_by_id,omitempty"`
	Note                *string    `json:"note,omitempty"`
	Overdue             bool       `json:"overdue"`
}

// CheckInResponse: closed は今回の返却で貸出が締まったかどうか
type CheckInResponse struct {
	CheckInID        uint64           `json:"checkin_id"`
	CheckInULID      string           `json:"checkin_ulid"`
	CheckoutID       uint64           `json:"checkout_id"`
	QuantityReturned uint             `json:"quantity_returned"`
	Condition        string           `json:"condition"`
	ProcessedByID    *string          `json:"processed_by_id,omitempty"`
	ReturnedAt       time.Time        `json:"returned_at"`
	Note             *string          `json:"note,omitempty"`
	Closed           bool             `json:"closed"`
	Checkout         CheckoutResponse `json:"checkout"`
}

type CheckoutBatchResponse struct {
	Checkouts []CheckoutResponse `json:"checkouts"`
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

func buildCheckoutResponse(m Checkout, returnedQty uint, now time.Time) CheckoutResponse {
	resp := CheckoutResponse{
		CheckoutID:          m.CheckoutID,
		CheckoutULID:        m.CheckoutULID,
		ItemID:              m.ItemID,
		BorrowerID:          m.BorrowerID,
		Quantity:            m.Quantity,
		ReturnedQuantity:    returnedQty,
		OutstandingQuantity: m.Quantity - returnedQty,
		CheckedOutAt:        m.CheckedOutAt,
		DueAt:               m.DueAt,
		Overdue:             m.Overdue(now),
	}
	if m.ReturnedAt.Valid {
		v := m.ReturnedAt.Time
		resp.ReturnedAt = &v
	}
	if m.LentByID.Valid {
		v := m.LentByID.String
		resp.LentByID = &v
	}
	if m.Note.Valid {
		v := m.Note.String
		resp.Note = &v
	}
	return resp
}

func buildCheckInResponse(m CheckIn) CheckInResponse {
	resp := CheckInResponse{
		CheckInID:        m.CheckInID,
		CheckInULID:      m.CheckInULID,
		CheckoutID:       m.CheckoutID,
		QuantityReturned: m.QuantityReturned,
		Condition:        string(m.Condition),
		ReturnedAt:       m.ReturnedAt,
	}
	if m.ProcessedByID.Valid {
		v := m.ProcessedByID.String
		resp.ProcessedByID = &v
	}
	if m.Note.Valid {
		v := m.Note.String
		resp.Note = &v
	}
	return resp
}
