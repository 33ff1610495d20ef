// Package apitest runs an in-process stand-in for the inventory backend.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
)

const branchHeader = "X-Branch-Id"

// Server records sales per branch and de-duplicates them by client_sale_id
// the way the real backend does.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	failStatus int
	nextID     int64
	products   map[string][]domain.Product
	sales      []recordedSale
	byClientID map[string]int
	requests   int
}

type recordedSale struct {
	branchID string
	sale     domain.Sale
}

// NewServer starts the fake. An empty token accepts any caller.
func NewServer(token string) *Server {
	s := &Server{
		token:      token,
		products:   make(map[string][]domain.Product),
		byClientID: make(map[string]int),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(s.count, s.auth, s.failure)
	router.POST("/sales", s.createSale)
	router.GET("/sales", s.listSales)
	router.GET("/products/", s.listProducts)

	s.Server = httptest.NewServer(router)
	return s
}

// SetProducts replaces the catalog served for branchID.
func (s *Server) SetProducts(branchID string, products []domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[branchID] = append([]domain.Product(nil), products...)
}

// FailWith makes every request answer status. Zero restores normal service.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// Sales returns the accepted sales for branchID in arrival order.
func (s *Server) Sales(branchID string) []domain.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Sale
	for _, r := range s.sales {
		if r.branchID == branchID {
			out = append(out, r.sale)
		}
	}
	return out
}

func (s *Server) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) count(c *gin.Context) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	c.Next()
}

func (s *Server) auth(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	if strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ") != s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Next()
}

func (s *Server) failure(c *gin.Context) {
	s.mu.Lock()
	status := s.failStatus
	s.mu.Unlock()

	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"detail": "service unavailable"})
		return
	}
	c.Next()
}

func (s *Server) createSale(c *gin.Context) {
	var payload domain.SalePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	qty, ok := payload.Quantity.Decimal()
	if !ok || !qty.IsPositive() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "quantity must be positive"})
		return
	}
	branchID := c.GetHeader(branchHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.ClientSaleID != "" {
		if i, seen := s.byClientID[payload.ClientSaleID]; seen {
			c.JSON(http.StatusCreated, s.sales[i].sale)
			return
		}
	}

	s.nextID++
	sale := domain.Sale{
		SalePayload: payload,
		ID:          s.nextID,
		CreatedAt:   time.Now().UTC().Format("2006-01-02T15:04:05"),
	}
	s.sales = append(s.sales, recordedSale{branchID: branchID, sale: sale})
	if payload.ClientSaleID != "" {
		s.byClientID[payload.ClientSaleID] = len(s.sales) - 1
	}
	s.deductLocked(branchID, payload.ProductID, qty)

	c.JSON(http.StatusCreated, sale)
}

func (s *Server) deductLocked(branchID string, productID int64, qty decimal.Decimal) {
	products := s.products[branchID]
	for i := range products {
		if products[i].ID != productID {
			continue
		}
		if stock, ok := products[i].CurrentStock.Decimal(); ok {
			products[i].CurrentStock = domain.NewQuantity(decimal.Max(stock.Sub(qty), decimal.Zero))
		}
		return
	}
}

func (s *Server) listSales(c *gin.Context) {
	branchID := c.GetHeader(branchHeader)

	s.mu.Lock()
	out := []domain.Sale{}
	for i := len(s.sales) - 1; i >= 0; i-- {
		if s.sales[i].branchID == branchID {
			out = append(out, s.sales[i].sale)
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, out)
}

func (s *Server) listProducts(c *gin.Context) {
	branchID := c.GetHeader(branchHeader)

	s.mu.Lock()
	out := append([]domain.Product{}, s.products[branchID]...)
	s.mu.Unlock()

	c.JSON(http.StatusOK, out)
}
