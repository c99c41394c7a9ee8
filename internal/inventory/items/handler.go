package items

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sherlock-backend/internal/platform/auth"
	"sherlock-backend/internal/platform/db"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/items", h.CreateItem)
	r.POST("/items/import", h.ImportItems)
	r.GET("/items", h.ListItems)
	// :key は item_id / item_ulid / 12桁収納コードのいずれか
	r.GET("/items/:key", h.GetItem)
	r.GET("/items/:key/availability", h.GetAvailability)
	r.GET("/items/:key/logs", h.ListItemLogs)
	r.POST("/items/:key/adjustments", h.AdjustStock)
}

// CreateItem godoc
// @Summary 物品登録
// @Tags items
// @Accept json
// @Produce json
// @Param body body CreateItemRequest true "item"
// @Success 201 {object} ItemResponse
// @Router /items [post]
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateItem(c.Request.Context(), req, auth.ActorID(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/items/"+res.ItemULID)
	c.JSON(http.StatusCreated, res)
}

// AdjustStock godoc
// @Summary 在庫調整（入庫・破損・紛失・補正）
// @Tags items
// @Accept json
// @Produce json
// @Param key path string true "item_id / item_ulid / storage_code"
// @Param body body AdjustStockRequest true "adjustment"
// @Success 200 {object} ItemResponse
// @Router /items/{key}/adjustments [post]
func (h *Handler) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	key := c.Param("key")
	actor := auth.ActorID(c)
	res, err := h.svc.AdjustStock(c.Request.Context(), key, req, actor)
	if err != nil && db.IsRetryable(err) {
		// Tx競合は一度だけ自動再実行（それでもだめなら呼び出し側へ返す）
		res, err = h.svc.AdjustStock(c.Request.Context(), key, req, actor)
	}
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetItem(c *gin.Context) {
	res, err := h.svc.GetItem(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	res, err := h.svc.GetAvailability(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListItems(c *gin.Context) {
	f := ItemSearchQuery{}
	if v := c.Query("storage_code"); v != "" {
		f.StorageCode = &v
	}
	if v := c.Query("name"); v != "" {
		f.Name = &v
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, total, err := h.svc.ListItems(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res, "total": total})
}

func (h *Handler) ListItemLogs(c *gin.Context) {
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, total, err := h.svc.ListItemLogs(c.Request.Context(), c.Param("key"), p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": res, "total": total})
}

// ImportItems: multipart("file") または リクエストボディ直のCSVを受ける
func (h *Handler) ImportItems(c *gin.Context) {
	var res *ImportItemsResponse
	var err error

	if file, ferr := c.FormFile("file"); ferr == nil {
		f, oerr := file.Open()
		if oerr != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "failed to open uploaded file"))
			return
		}
		defer f.Close()
		res, err = h.svc.ImportItemsCSV(c.Request.Context(), f, auth.ActorID(c))
	} else {
		res, err = h.svc.ImportItemsCSV(c.Request.Context(), c.Request.Body, auth.ActorID(c))
	}

	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
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
