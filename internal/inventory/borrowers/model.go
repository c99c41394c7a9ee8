package borrowers

import "time"

// Borrower は borrowers テーブルの1行（生徒名簿）。
// 貸出履歴から参照されている間は削除できない（ON DELETE RESTRICT）。
type Borrower struct {
	BorrowerID      uint64
	BorrowerULID    string
	AdmissionNumber string // 学籍番号。大文字で保存する。
	Name            string
	ClassName       string
	SectionName     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BorrowerFilter struct {
	AdmissionNumber *string
	Name            *string // 部分一致
	ClassName       *string
}
