package borrowers

import "time"

type CreateBorrowerRequest struct {
	AdmissionNumber string `json:"admission_number" binding:"required"`
	Name            string `json:"name" binding:"required"`
	ClassName       string `json:"class_name" binding:"required"`
	SectionName     string `json:"section_name" binding:"required"`
}

type UpdateBorrowerRequest struct {
	Name        *string `json:"name,omitempty"`
	ClassName   *string `json:"class_name,omitempty"`
	SectionName *string `json:"section_name,omitempty"`
}

type BorrowerResponse struct {
	BorrowerID      uint64    `json:"borrower_id"`
	BorrowerULID    string    `json:"borrower_ulid"`
	AdmissionNumber string    `json:"admission_number"`
	Name            string    `json:"name"`
	ClassName       string    `json:"class_name"`
	SectionName     string    `json:"section_name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

func toBorrowerResponse(m Borrower) BorrowerResponse {
	return BorrowerResponse{
		BorrowerID:      m.BorrowerID,
		BorrowerULID:    m.BorrowerULID,
		AdmissionNumber: m.AdmissionNumber,
		Name:            m.Name,
		ClassName:       m.ClassName,
		SectionName:     m.SectionName,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
