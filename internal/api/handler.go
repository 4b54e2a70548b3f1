package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CartService is the cart API surface
type CartService interface {
	AddToCart(ctx context.Context, user *models.User, input service.AddToCartInput) (*models.CartItem, error)
	UpdateCartQuantity(ctx context.Context, user *models.User, itemID int64, quantity int) (*models.CartItem, error)
	RemoveFromCart(ctx context.Context, user *models.User, itemID int64) error
	GetCartItems(ctx context.Context, user *models.User) ([]models.CartItemWithDetails, error)
	CartSummary(ctx context.Context, user *models.User) (*models.CartSummary, error)
}

// OrderService is the customer order API surface
type OrderService interface {
	CreateOrder(ctx context.Context, user *models.User, input service.CreateOrderInput) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, user *models.User, orderID int64) (*models.OrderWithItems, error)
	ListOrders(ctx context.Context, user *models.User) ([]models.Order, error)
	CancelOrder(ctx context.Context, user *models.User, orderID int64) (*models.Order, error)
}

// StockReader serves storefront stock lookups
type StockReader interface {
	GetStock(ctx context.Context, variantID int64) (int, error)
}

// AdminService is the back-office API surface
type AdminService interface {
	UpdateProductStock(ctx context.Context, admin *models.User, variantID int64, newValue int) (*service.StockUpdate, error)
	UpdateOrderStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*service.StatusChange, error)
	UpdatePaymentStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*service.StatusChange, error)
	UpdateFulfillmentStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*service.StatusChange, error)
	ListOrders(ctx context.Context, admin *models.User, filter models.OrderFilter) ([]models.Order, error)
	Dashboard(ctx context.Context, admin *models.User) (*models.Dashboard, error)
	InventoryLogs(ctx context.Context, admin *models.User, variantID int64, limit int) ([]models.InventoryLog, error)
	Reconcile(ctx context.Context, admin *models.User) ([]models.StockDiscrepancy, error)
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the handlers call
type Services struct {
	Cart      CartService
	Orders    OrderService
	Inventory StockReader
	Admin     AdminService
}

// Handler contains HTTP handlers
type Handler struct {
	cart      CartService
	orders    OrderService
	inventory StockReader
	admin     AdminService
	identity  auth.Provider
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by the readiness probe.
func NewHandler(services Services, identity auth.Provider, checks map[string]Pinger) *Handler {
	return &Handler{
		cart:      services.Cart,
		orders:    services.Orders,
		inventory: services.Inventory,
		admin:     services.Admin,
		identity:  identity,
		checks:    checks,
		logger:    util.Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.identityMiddleware())
	{
		v1.GET("/cart", h.getCart)
		v1.GET("/cart/summary", h.getCartSummary)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.GET("/variants/:id/stock", h.getStock)
	}

	admin := v1.Group("/admin")
	admin.Use(requireAdmin())
	{
		admin.PUT("/variants/:id/stock", h.setStock)
		admin.GET("/variants/:id/inventory-logs", h.inventoryLogs)
		admin.GET("/orders", h.adminListOrders)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.PATCH("/orders/:id/payment-status", h.updatePaymentStatus)
		admin.PATCH("/orders/:id/fulfillment-status", h.updateFulfillmentStatus)
		admin.GET("/dashboard", h.dashboard)
		admin.GET("/inventory/reconcile", h.reconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// Cart

func (h *Handler) getCart(c *gin.Context) {
	items, err := h.cart.GetCartItems(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) getCartSummary(c *gin.Context) {
	summary, err := h.cart.CartSummary(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddToCartInput
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.cart.AddToCart(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Quantity == nil {
		h.writeError(c, fieldError("quantity", "is required"))
		return
	}

	item, err := h.cart.UpdateCartQuantity(c.Request.Context(), currentUser(c), itemID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"removed": true})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.cart.RemoveFromCart(c.Request.Context(), currentUser(c), itemID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Orders

// createOrder handles checkout
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderInput
	if !h.bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getStock(c *gin.Context) {
	variantID, ok := h.pathID(c)
	if !ok {
		return
	}

	stock, err := h.inventory.GetStock(c.Request.Context(), variantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variant_id": variantID, "stock": stock})
}

// Admin

type setStockRequest struct {
	Stock *int `json:"stock"`
}

func (h *Handler) setStock(c *gin.Context) {
	variantID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req setStockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Stock == nil {
		h.writeError(c, fieldError("stock", "is required"))
		return
	}

	update, err := h.admin.UpdateProductStock(c.Request.Context(), currentUser(c), variantID, *req.Stock)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *Handler) inventoryLogs(c *gin.Context) {
	variantID, ok := h.pathID(c)
	if !ok {
		return
	}
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}

	logs, err := h.admin.InventoryLogs(c.Request.Context(), currentUser(c), variantID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) adminListOrders(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(c, "offset")
	if !ok {
		return
	}

	orders, err := h.admin.ListOrders(c.Request.Context(), currentUser(c), models.OrderFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusUpdater func(ctx context.Context, admin *models.User, orderID int64, status string) (*service.StatusChange, error)

func (h *Handler) overwriteStatus(c *gin.Context, update statusUpdater) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	change, err := update(c.Request.Context(), currentUser(c), orderID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	h.overwriteStatus(c, h.admin.UpdateOrderStatus)
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	h.overwriteStatus(c, h.admin.UpdatePaymentStatus)
}

func (h *Handler) updateFulfillmentStatus(c *gin.Context) {
	h.overwriteStatus(c, h.admin.UpdateFulfillmentStatus)
}

func (h *Handler) dashboard(c *gin.Context) {
	dash, err := h.admin.Dashboard(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (h *Handler) reconcile(c *gin.Context) {
	discrepancies, err := h.admin.Reconcile(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": discrepancies})
}

// Request helpers

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, fieldError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(c, fieldError(name, "must be an integer"))
		return 0, false
	}
	return n, true
}

func (h *Handler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.writeError(c, badBody(err))
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
