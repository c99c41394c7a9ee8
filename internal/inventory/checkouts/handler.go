package checkouts

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sherlock-backend/internal/platform/auth"
	"sherlock-backend/internal/platform/db"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/checkouts", h.CreateCheckout)
	r.POST("/checkouts/batch", h.CreateCheckoutBatch)
	r.GET("/checkouts", h.ListCheckouts)
	r.GET("/checkouts/:key", h.GetCheckout)
	r.GET("/checkouts/:key/overdue", h.GetOverdue)

	r.POST("/checkins", h.CreateCheckIn)
	r.GET("/checkins", h.ListCheckIns)
}

// CreateCheckout godoc
// @Summary 貸出登録
// @Tags checkouts
// @Accept json
// @Produce json
// @Param body body CreateCheckoutRequest true "checkout"
// @Success 201 {object} CheckoutResponse
// @Router /checkouts [post]
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	actor := auth.ActorID(c)
	res, err := h.svc.CreateCheckout(c.Request.Context(), req, actor)
	if err != nil && db.IsRetryable(err) {
		// Tx競合は一度だけ自動再実行
		res, err = h.svc.CreateCheckout(c.Request.Context(), req, actor)
	}
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/checkouts/"+res.CheckoutULID)
	c.JSON(http.StatusCreated, res)
}

// CreateCheckoutBatch: カート一括貸出（全明細が通るか、1件も作られないか）
func (h *Handler) CreateCheckoutBatch(c *gin.Context) {
	var req CreateCheckoutBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	actor := auth.ActorID(c)
	res, err := h.svc.CreateCheckoutBatch(c.Request.Context(), req, actor)
	if err != nil && db.IsRetryable(err) {
		res, err = h.svc.CreateCheckoutBatch(c.Request.Context(), req, actor)
	}
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.JSON(http.StatusCreated, res)
}

// CreateCheckIn godoc
// @Summary 返却登録（部分返却対応）
// @Tags checkins
// @Accept json
// @Produce json
// @Param body body CreateCheckInRequest true "checkin"
// @Success 201 {object} CheckInResponse
// @Router /checkins [post]
func (h *Handler) CreateCheckIn(c *gin.Context) {
	var req CreateCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	actor := auth.ActorID(c)
	res, err := h.svc.CreateCheckIn(c.Request.Context(), req, actor)
	if err != nil && db.IsRetryable(err) {
		res, err = h.svc.CreateCheckIn(c.Request.Context(), req, actor)
	}
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/checkins/"+res.CheckInULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetCheckout(c *gin.Context) {
	res, err := h.svc.GetCheckout(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetOverdue(c *gin.Context) {
	overdue, err := h.svc.IsOverdue(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"overdue": overdue})
}

func (h *Handler) ListCheckouts(c *gin.Context) {
	f := CheckoutFilter{}
	if v := c.Query("borrower_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.BorrowerID = &id
		}
	}
	if v := c.Query("item_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.ItemID = &id
		}
	}
	if v := c.Query("returned"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Returned = &b
		}
	}
	if v := c.Query("only_outstanding"); v == "true" || v == "1" {
		f.OnlyOutstanding = true
	}
	if v := c.Query("overdue"); v == "true" || v == "1" {
		f.OverdueOnly = true
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, total, err := h.svc.ListCheckouts(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkouts": res, "total": total})
}

func (h *Handler) ListCheckIns(c *gin.Context) {
	f := CheckInFilter{}
	if v := c.Query("checkout_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.CheckoutID = &id
		}
	}
	if v := c.Query("item_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.ItemID = &id
		}
	}
	if v := c.Query("condition"); v != "" {
		cond := Condition(v)
		if cond.Valid() {
			f.Condition = &cond
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, total, err := h.svc.ListCheckIns(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkins": res, "total": total})
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
