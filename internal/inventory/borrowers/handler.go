package borrowers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/borrowers", h.CreateBorrower)
	r.GET("/borrowers", h.ListBorrowers)
	// :key は borrower_id / borrower_ulid / 学籍番号のいずれか
	r.GET("/borrowers/:key", h.GetBorrower)
	r.PUT("/borrowers/:key", h.UpdateBorrower)
	r.DELETE("/borrowers/:key", h.DeleteBorrower)
}

// CreateBorrower godoc
// @Summary 生徒登録
// @Tags borrowers
// @Accept json
// @Produce json
// @Param body body CreateBorrowerRequest true "borrower"
// @Success 201 {object} BorrowerResponse
// @Router /borrowers [post]
func (h *Handler) CreateBorrower(c *gin.Context) {
	var req CreateBorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateBorrower(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/borrowers/"+res.BorrowerULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetBorrower(c *gin.Context) {
	res, err := h.svc.GetBorrower(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBorrowers(c *gin.Context) {
	f := BorrowerFilter{}
	if v := c.Query("admission_number"); v != "" {
		f.AdmissionNumber = &v
	}
	if v := c.Query("name"); v != "" {
		f.Name = &v
	}
	if v := c.Query("class_name"); v != "" {
		f.ClassName = &v
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, total, err := h.svc.ListBorrowers(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrowers": res, "total": total})
}

func (h *Handler) UpdateBorrower(c *gin.Context) {
	var req UpdateBorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.UpdateBorrower(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteBorrower godoc
// @Summary 生徒削除（貸出履歴があれば409）
// @Tags borrowers
// @Param key path string true "borrower_id / borrower_ulid / admission_number"
// @Success 200 {object} map[string]string
// @Router /borrowers/{key} [delete]
func (h *Handler) DeleteBorrower(c *gin.Context) {
	if err := h.svc.DeleteBorrower(c.Request.Context(), c.Param("key")); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
