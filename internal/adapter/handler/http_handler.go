package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/service"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

// Session is the mutable client context the till UI drives.
type Session interface {
	port.ClientContext
	SetOnline(online bool) bool
	SetActiveBranch(branchID string) bool
}

type HTTPHandler struct {
	session  Session
	engine   *service.SyncEngine
	checkout *service.Checkout
	cache    *service.ProductCache
	outbox   *service.SaleOutbox
}

type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type BranchRequest struct {
	BranchID string `json:"branch_id"`
}

type CheckoutResponse struct {
	Confirmed []domain.Sale        `json:"confirmed"`
	Queued    []domain.OutboxEntry `json:"queued"`
	Message   string               `json:"message,omitempty"`
}

type SyncResponse struct {
	Skipped   bool   `json:"skipped"`
	Attempted int    `json:"attempted"`
	Confirmed int    `json:"confirmed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

type ProductsResponse struct {
	BranchID string           `json:"branch_id"`
	CachedAt string           `json:"cached_at"`
	Products []domain.Product `json:"products"`
}

func NewHTTPHandler(session Session, engine *service.SyncEngine, checkout *service.Checkout, cache *service.ProductCache, outbox *service.SaleOutbox) *HTTPHandler {
	return &HTTPHandler{
		session:  session,
		engine:   engine,
		checkout: checkout,
		cache:    cache,
		outbox:   outbox,
	}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	v1 := r.Group("/api/v1")
	v1.GET("/status", h.Status)
	v1.PUT("/connectivity", h.SetConnectivity)
	v1.PUT("/branch", h.SetBranch)
	v1.GET("/products", h.CachedProducts)
	v1.POST("/sales", h.SubmitSales)
	v1.GET("/sales/recent", h.RecentSales)
	v1.GET("/outbox", h.Outbox)
	v1.GET("/outbox/count", h.OutboxCount)
	v1.DELETE("/outbox/:id", h.RemoveOutboxItem)
	v1.DELETE("/outbox", h.ClearOutbox)
	v1.POST("/sync", h.SyncNow)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status(c.Request.Context()))
}

func (h *HTTPHandler) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online flag is required"})
		return
	}
	h.session.SetOnline(*req.Online)
	c.JSON(http.StatusOK, h.engine.Status(c.Request.Context()))
}

func (h *HTTPHandler) SetBranch(c *gin.Context) {
	var req BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.session.SetActiveBranch(req.BranchID)
	c.JSON(http.StatusOK, h.engine.Status(c.Request.Context()))
}

func (h *HTTPHandler) CachedProducts(c *gin.Context) {
	snapshot, ok := h.cache.LoadSnapshot(c.Request.Context(), branchFromQuery(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached products for branch"})
		return
	}
	c.JSON(http.StatusOK, ProductsResponse{
		BranchID: snapshot.BranchID,
		CachedAt: snapshot.CachedAt.Format("2006-01-02T15:04:05Z07:00"),
		Products: snapshot.Products,
	})
}

func (h *HTTPHandler) SubmitSales(c *gin.Context) {
	var sales []domain.SalePayload
	if err := c.ShouldBindJSON(&sales); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	for _, sale := range sales {
		if qty, ok := sale.Quantity.Decimal(); !ok || !qty.IsPositive() || sale.ProductID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every line needs a product and a positive quantity"})
			return
		}
	}

	result, err := h.checkout.SubmitSales(c.Request.Context(), sales, branchFromQuery(c))
	if errors.Is(err, service.ErrNoSales) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no sales provided"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := CheckoutResponse{
		Confirmed: nonNil(result.Confirmed),
		Queued:    nonNil(result.Queued),
	}
	status := http.StatusCreated
	if len(result.Queued) > 0 {
		status = http.StatusAccepted
		resp.Message = service.PendingNotice(h.outbox.GetSalesOutboxCount(c.Request.Context()))
	}
	c.JSON(status, resp)
}

func (h *HTTPHandler) RecentSales(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.engine.RecentSales()))
}

func (h *HTTPHandler) Outbox(c *gin.Context) {
	c.JSON(http.StatusOK, h.outbox.GetSalesOutbox(c.Request.Context()))
}

func (h *HTTPHandler) OutboxCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.outbox.GetSalesOutboxCount(c.Request.Context())})
}

func (h *HTTPHandler) RemoveOutboxItem(c *gin.Context) {
	h.outbox.RemoveOutboxItem(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ClearOutbox(c *gin.Context) {
	h.outbox.ClearSalesOutbox(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) SyncNow(c *gin.Context) {
	result := h.engine.SyncNow(c.Request.Context())
	resp := SyncResponse{
		Skipped:   result.Skipped,
		Attempted: result.Attempted,
		Confirmed: result.Confirmed,
		Remaining: result.Remaining,
	}
	switch {
	case result.Skipped:
		resp.Message = "offline"
	case result.Err != nil:
		resp.Message = result.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// branchFromQuery maps ?branch= to a partition; a missing parameter means
// the active branch and an empty one the unscoped partition.
func branchFromQuery(c *gin.Context) domain.BranchRef {
	if id, ok := c.GetQuery("branch"); ok {
		return domain.Branch(id)
	}
	return domain.ActiveBranch()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
