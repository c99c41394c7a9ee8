package checkouts

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// ---- Clock & ID ----

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ---- Service ----

type Service struct {
	db    *sql.DB
	store *Store
	clock Clock
	id    IDGen
}

func NewService(d *sql.DB) *Service {
	return &Service{
		db:    d,
		store: NewStore(d),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// 貸出登録
func (s *Service) CreateCheckout(ctx context.Context, req CreateCheckoutRequest, actorID *string) (*CheckoutResponse, error) {
	now := s.clock.Now()

	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity("quantity must be > 0")
	}
	if req.BorrowerID == 0 {
		return nil, ErrInvalid("borrower_id is required")
	}
	// 期限切れ前提の貸出は作らせない
	if !req.DueAt.After(now) {
		return nil, ErrInvalidDueDate("due_at must be in the future")
	}

	itemID := req.ItemID
	if itemID == 0 {
		if req.ItemKey == nil || *req.ItemKey == "" {
			return nil, ErrInvalid("either item_id or item_key is required")
		}
		id, err := s.store.ResolveItemID(ctx, *req.ItemKey)
		if err != nil {
			return nil, err
		}
		itemID = id
	}

	m := &Checkout{
		CheckoutULID: s.id.NewULID(now),
		ItemID:       itemID,
		BorrowerID:   req.BorrowerID,
		Quantity:     uint(req.Quantity),
		CheckedOutAt: now,
		DueAt:        req.DueAt,
	}
	if actorID != nil && *actorID != "" {
		m.LentByID = sql.NullString{String: *actorID, Valid: true}
	}
	if req.Note != nil && *req.Note != "" {
		m.Note = sql.NullString{String: *req.Note, Valid: true}
	}

	if err := s.store.ExecCreateCheckout(ctx, m); err != nil {
		return nil, err
	}

	resp := buildCheckoutResponse(*m, 0, now)
	return &resp, nil
}

// カート一括貸出。明細は渡された順に処理し、1件でも通らなければ全体を巻き戻す。
func (s *Service) CreateCheckoutBatch(ctx context.Context, req CreateCheckoutBatchRequest, actorID *string) (*CheckoutBatchResponse, error) {
	now := s.clock.Now()

	if req.BorrowerID == 0 {
		return nil, ErrInvalid("borrower_id is required")
	}
	if len(req.Lines) == 0 {
		return nil, ErrInvalid("lines must not be empty")
	}
	if !req.DueAt.After(now) {
		return nil, ErrInvalidDueDate("due_at must be in the future")
	}

	seen := make(map[uint64]struct{}, len(req.Lines))
	ms := make([]*Checkout, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.ItemID == 0 {
			return nil, ErrInvalid("item_id is required in every line")
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity("quantity must be > 0 in every line")
		}
		// 同一itemの重複明細はロック順が壊れるので拒否（数量をまとめて出し直してもらう）
		if _, dup := seen[line.ItemID]; dup {
			return nil, ErrInvalid("duplicate item_id in lines: " + strconv.FormatUint(line.ItemID, 10))
		}
		seen[line.ItemID] = struct{}{}

		m := &Checkout{
			CheckoutULID: s.id.NewULID(now),
			ItemID:       line.ItemID,
			BorrowerID:   req.BorrowerID,
			Quantity:     uint(line.Quantity),
			CheckedOutAt: now,
			DueAt:        req.DueAt,
		}
		if actorID != nil && *actorID != "" {
			m.LentByID = sql.NullString{String: *actorID, Valid: true}
		}
		if req.Note != nil && *req.Note != "" {
			m.Note = sql.NullString{String: *req.Note, Valid: true}
		}
		ms = append(ms, m)
	}

	if err := s.store.ExecCreateCheckoutBatch(ctx, ms); err != nil {
		return nil, err
	}

	resp := &CheckoutBatchResponse{Checkouts: make([]CheckoutResponse, 0, len(ms))}
	for _, m := range ms {
		resp.Checkouts = append(resp.Checkouts, buildCheckoutResponse(*m, 0, now))
	}
	return resp, nil
}

// 返却登録（部分返却対応）
func (s *Service) CreateCheckIn(ctx context.Context, req CreateCheckInRequest, actorID *string) (*CheckInResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity("quantity must be > 0")
	}
	cond := Condition(strings.ToUpper(strings.TrimSpace(req.Condition)))
	if !cond.Valid() {
		return nil, ErrInvalidCondition(req.Condition)
	}

	checkoutID := req.CheckoutID
	if checkoutID == 0 {
		if req.CheckoutULID == nil || *req.CheckoutULID == "" {
			return nil, ErrInvalid("either checkout_id or checkout_ulid is required")
		}
		row, err := s.store.GetCheckoutRowByULID(ctx, *req.CheckoutULID)
		if err != nil {
			return nil, err
		}
		checkoutID = row.CheckoutID
	}

	now := s.clock.Now()
	m := &CheckIn{
		CheckInULID:      s.id.NewULID(now),
		CheckoutID:       checkoutID,
		QuantityReturned: uint(req.Quantity),
		Condition:        cond,
		ReturnedAt:       now,
	}
	if actorID != nil && *actorID != "" {
		m.ProcessedByID = sql.NullString{String: *actorID, Valid: true}
	}
	if req.Note != nil && *req.Note != "" {
		m.Note = sql.NullString{String: *req.Note, Valid: true}
	}

	result, err := s.store.ExecCreateCheckIn(ctx, m, actorID, now)
	if err != nil {
		return nil, err
	}

	resp := buildCheckInResponse(*m)
	resp.Closed = result.Closed
	resp.Checkout = buildCheckoutResponse(result.Checkout, result.ReturnedSum, now)
	return &resp, nil
}

// 貸出単一取得（ID or ULID）
func (s *Service) GetCheckout(ctx context.Context, key string) (*CheckoutResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}

	var row *checkoutRow
	var err error
	if id, perr := strconv.ParseUint(key, 10, 64); perr == nil && id > 0 {
		row, err = s.store.GetCheckoutRow(ctx, id)
	} else {
		row, err = s.store.GetCheckoutRowByULID(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	resp := buildCheckoutResponse(row.Checkout, row.ReturnedSum, s.clock.Now())
	resp.StorageCode = row.StorageCode
	resp.ItemName = row.ItemName
	return &resp, nil
}

// 期限超過かどうかだけ返す軽量アクセサ
func (s *Service) IsOverdue(ctx context.Context, key string) (bool, error) {
	resp, err := s.GetCheckout(ctx, key)
	if err != nil {
		return false, err
	}
	return resp.Overdue, nil
}

// 貸出一覧（未返却のみ・期限超過のみ等のフィルタ付き）
func (s *Service) ListCheckouts(ctx context.Context, f CheckoutFilter, p Page) ([]CheckoutResponse, int64, error) {
	now := s.clock.Now()
	rows, total, err := s.store.ListCheckouts(ctx, f, p, now)
	if err != nil {
		return nil, 0, err
	}

	out := make([]CheckoutResponse, 0, len(rows))
	for _, r := range rows {
		resp := buildCheckoutResponse(r.Checkout, r.ReturnedSum, now)
		resp.StorageCode = r.StorageCode
		resp.ItemName = r.ItemName
		out = append(out, resp)
	}
	return out, total, nil
}

// 返却一覧
func (s *Service) ListCheckIns(ctx context.Context, f CheckInFilter, p Page) ([]CheckInResponse, int64, error) {
	list, total, err := s.store.ListCheckIns(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]CheckInResponse, 0, len(list))
	for _, m := range list {
		out = append(out, buildCheckInResponse(m))
	}
	return out, total, nil
}
