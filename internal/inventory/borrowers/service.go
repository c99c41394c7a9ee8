package borrowers

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

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

// 生徒登録。識別系フィールドは大文字に正規化して保存する。
func (s *Service) CreateBorrower(ctx context.Context, req CreateBorrowerRequest) (*BorrowerResponse, error) {
	if strings.TrimSpace(req.AdmissionNumber) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalid("admission_number and name are required")
	}

	now := s.clock.Now()
	m := &Borrower{
		BorrowerULID:    s.id.NewULID(now),
		AdmissionNumber: strings.ToUpper(strings.TrimSpace(req.AdmissionNumber)),
		Name:            strings.ToUpper(strings.TrimSpace(req.Name)),
		ClassName:       strings.ToUpper(strings.TrimSpace(req.ClassName)),
		SectionName:     strings.ToUpper(strings.TrimSpace(req.SectionName)),
	}

	if err := s.store.Insert(ctx, m, now); err != nil {
		return nil, err
	}
	resp := toBorrowerResponse(*m)
	return &resp, nil
}

// 単一取得（ID / ULID / 学籍番号）
func (s *Service) GetBorrower(ctx context.Context, key string) (*BorrowerResponse, error) {
	m, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := toBorrowerResponse(*m)
	return &resp, nil
}

func (s *Service) ListBorrowers(ctx context.Context, f BorrowerFilter, p Page) ([]BorrowerResponse, int64, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BorrowerResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toBorrowerResponse(m))
	}
	return out, total, nil
}

func (s *Service) UpdateBorrower(ctx context.Context, key string, req UpdateBorrowerRequest) (*BorrowerResponse, error) {
	cur, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	n, err := s.store.Update(ctx, cur.BorrowerID, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound("borrower not found")
	}
	return s.GetBorrower(ctx, strconv.FormatUint(cur.BorrowerID, 10))
}

// 削除。貸出履歴から参照されている場合は BORROWER_REFERENCED で拒否する。
func (s *Service) DeleteBorrower(ctx context.Context, key string) error {
	cur, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}

	n, err := s.store.Delete(ctx, cur.BorrowerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound("borrower not found")
	}
	return nil
}

// resolve: 数値ならID、26桁英数ならULID、それ以外は学籍番号として解釈する
func (s *Service) resolve(ctx context.Context, key string) (*Borrower, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalid("borrower key is required")
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil && id > 0 {
		return s.store.GetByID(ctx, id)
	}
	if _, err := ulid.ParseStrict(key); err == nil {
		return s.store.GetByULID(ctx, key)
	}
	return s.store.GetByAdmissionNumber(ctx, strings.ToUpper(key))
}
