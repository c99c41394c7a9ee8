package items

import (
	"context"
	"crypto/rand"
	"database/sql"
	"io"
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

// 物品登録
func (s *Service) CreateItem(ctx context.Context, req CreateItemRequest, actorID *string) (*ItemResponse, error) {
	code := strings.TrimSpace(req.StorageCode)
	if !validStorageCode(code) {
		return nil, ErrInvalid("storage_code must be 12 digits")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalid("name is required")
	}

	now := s.clock.Now()
	m := &Item{
		ItemULID:       s.id.NewULID(now),
		StorageCode:    code,
		Name:           strings.TrimSpace(req.Name),
		TotalQuantity:  req.TotalQuantity,
		BufferQuantity: req.BufferQuantity,
	}
	if req.Description != nil {
		m.Description = *req.Description
	}

	if err := s.store.ExecCreateItem(ctx, m, actorID, req.Notes, now); err != nil {
		return nil, err
	}

	resp := toItemResponse(itemRow{Item: *m})
	return &resp, nil
}

// 在庫調整（入庫・破損・紛失・手動補正）
// 減算で在庫を下回る場合は失敗し、部分的な状態変更は一切残らない。
func (s *Service) AdjustStock(ctx context.Context, key string, req AdjustStockRequest, actorID *string) (*ItemResponse, error) {
	action := StockAction(strings.ToUpper(strings.TrimSpace(req.Action)))
	if !action.Valid() {
		return nil, ErrInvalid("unknown action: " + req.Action)
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity("quantity must be > 0")
	}

	cur, err := s.resolveItem(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.store.ExecAdjustStock(ctx, cur.ItemID, action, uint(req.Quantity), actorID, req.Notes, now)
	if err != nil {
		return nil, err
	}

	// 調整直後の貸出中数量は調整前と同じ（checkoutはこの操作で変化しない）
	resp := toItemResponse(itemRow{Item: *updated, CheckedOut: cur.CheckedOut})
	return &resp, nil
}

// 物品単一取得（ID / ULID / 12桁の収納コード）
func (s *Service) GetItem(ctx context.Context, key string) (*ItemResponse, error) {
	r, err := s.resolveItem(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := toItemResponse(*r)
	return &resp, nil
}

// 利用可能数量のみ返す軽量アクセサ
func (s *Service) GetAvailability(ctx context.Context, key string) (*AvailabilityResponse, error) {
	r, err := s.resolveItem(ctx, key)
	if err != nil {
		return nil, err
	}
	return &AvailabilityResponse{
		ItemID:             r.ItemID,
		TotalQuantity:      r.TotalQuantity,
		BufferQuantity:     r.BufferQuantity,
		CheckedOutQuantity: r.CheckedOut,
		AvailableQuantity:  r.AvailableQuantity(),
	}, nil
}

func (s *Service) ListItems(ctx context.Context, f ItemSearchQuery, p Page) ([]ItemResponse, int64, error) {
	rows, total, err := s.store.ListItems(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ItemResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toItemResponse(r))
	}
	return out, total, nil
}

// 監査ログ一覧（作成順が唯一の順序保証）
func (s *Service) ListItemLogs(ctx context.Context, key string, p Page) ([]ItemLogResponse, int64, error) {
	r, err := s.resolveItem(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	logs, total, err := s.store.ListItemLogs(ctx, r.ItemID, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ItemLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toItemLogResponse(l))
	}
	return out, total, nil
}

// CSV一括登録（UTF-8 / cp932 自動判別）
func (s *Service) ImportItemsCSV(ctx context.Context, r io.Reader, actorID *string) (*ImportItemsResponse, error) {
	rows, err := parseItemsCSV(r)
	if err != nil {
		return nil, err
	}

	resp := &ImportItemsResponse{Total: len(rows)}
	for i, row := range rows {
		result := ImportRowResult{Row: i + 1}
		if row.err != nil {
			msg := row.err.Error()
			result.Error = &msg
			resp.NgCount++
			resp.Results = append(resp.Results, result)
			continue
		}

		created, err := s.CreateItem(ctx, row.req, actorID)
		if err != nil {
			msg := err.Error()
			result.Error = &msg
			resp.NgCount++
		} else {
			result.Ok = true
			result.ItemID = &created.ItemID
			result.StorageCode = &created.StorageCode
			result.Name = &created.Name
			resp.OkCount++
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

// resolveItem: keyの解釈順序
//  1. 12桁の数字列 → storage_code（item_idと衝突しないよう先に判定する）
//  2. 数値 → item_id
//  3. それ以外 → item_ulid
func (s *Service) resolveItem(ctx context.Context, key string) (*itemRow, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalid("item key is required")
	}
	if validStorageCode(key) {
		return s.store.GetItemRowByStorageCode(ctx, key)
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil && id > 0 {
		return s.store.GetItemRow(ctx, id)
	}
	return s.store.GetItemRowByULID(ctx, key)
}

func validStorageCode(code string) bool {
	if len(code) != 12 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
