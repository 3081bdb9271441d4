package api

import (
	"net/http"
	"time"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/mailer"
	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	discounts *service.DiscountService
	ratings   *service.RatingService
	catalog   *service.CatalogService
	mailer    *mailer.Mailer
	jwtSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	discounts *service.DiscountService,
	ratings *service.RatingService,
	catalog *service.CatalogService,
	m *mailer.Mailer,
	jwtSecret string,
) *Handler {
	return &Handler{
		orders:    orders,
		discounts: discounts,
		ratings:   ratings,
		catalog:   catalog,
		mailer:    m,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(AuthMiddleware(h.jwtSecret))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	checkoutLimit := RateLimitMiddleware(10, 20)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.POST("/orders", checkoutLimit, h.createOrder)
		v1.GET("/orders", RequireAuth(), h.listOrders)
		v1.GET("/orders/:id", RequireAuth(), h.getOrder)
		v1.PUT("/orders/:id/status", RequireAdmin(), h.updateOrderStatus)

		v1.POST("/discounts/validate", checkoutLimit, h.validateDiscount)
		v1.POST("/discounts", RequireAdmin(), h.createDiscount)
		v1.GET("/discounts", RequireAdmin(), h.listDiscounts)
		v1.PUT("/discounts/:code", RequireAdmin(), h.updateDiscount)
		v1.DELETE("/discounts/:code", RequireAdmin(), h.deleteDiscount)

		v1.POST("/reviews/recalculate", h.recalculateRating)

		v1.POST("/emails/order-confirmation", h.sendOrderConfirmation)
		v1.POST("/emails/order-update", h.sendOrderUpdate)
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Infrastructure
// failures get a retryable status; everything else is a caller problem.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindAuthorization:
		status = http.StatusForbidden
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindInfrastructure:
		status = http.StatusServiceUnavailable
	case apperrors.KindEmailSend:
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"error":   kind.String(),
		"message": err.Error(),
	})
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// createOrder handles checkout submission. Anonymous submissions are bound
// to the guest sentinel; a bad token never blocks checkout.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.orders.SubmitOrder(c.Request.Context(), &req, GetIdentity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	ident := GetIdentity(c)
	orders, err := h.orders.ListOrders(c.Request.Context(), ident.UserID, ident.IsAdmin())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	ident := GetIdentity(c)
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), ident.UserID, ident.IsAdmin())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "status is required",
		})
		return
	}

	order, previous, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":           order,
		"previous_status": previous,
	})
}

type validateDiscountRequest struct {
	Code        string             `json:"code" binding:"required"`
	OrderAmount decimal.Decimal    `json:"order_amount"`
	Items       []models.OrderItem `json:"items,omitempty"`
}

// validateDiscount is a pure read used during guest checkout; it never
// increments the usage counter.
func (h *Handler) validateDiscount(c *gin.Context) {
	var req validateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.discounts.Validate(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		kind := apperrors.KindOf(err)
		if kind == apperrors.KindNotFound || kind == apperrors.KindConflict {
			status := http.StatusNotFound
			if kind == apperrors.KindConflict {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{
				"valid":   false,
				"error":   kind.String(),
				"message": err.Error(),
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type discountRequest struct {
	Code          string           `json:"code"`
	DiscountType  string           `json:"discount_type"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	MinPurchase   *decimal.Decimal `json:"min_purchase,omitempty"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
	ValidUntil    *time.Time       `json:"valid_until,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
}

func (r discountRequest) toModel() *models.DiscountCode {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &models.DiscountCode{
		Code:          r.Code,
		DiscountType:  r.DiscountType,
		DiscountValue: r.DiscountValue,
		MinPurchase:   r.MinPurchase,
		MaxDiscount:   r.MaxDiscount,
		ValidUntil:    r.ValidUntil,
		UsageLimit:    r.UsageLimit,
		IsActive:      active,
	}
}

func (h *Handler) createDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	dc, err := h.discounts.Create(c.Request.Context(), req.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dc)
}

func (h *Handler) listDiscounts(c *gin.Context) {
	codes, err := h.discounts.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discount_codes": codes})
}

// updateDiscount supports both the narrow toggle shape (is_active only) and
// the general multi-field update; both return the canonical persisted record.
func (h *Handler) updateDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	code := c.Param("code")

	if req.DiscountType == "" && req.DiscountValue.IsZero() && req.IsActive != nil {
		dc, err := h.discounts.SetActive(c.Request.Context(), code, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dc)
		return
	}

	dc := req.toModel()
	dc.Code = code
	updated, err := h.discounts.Update(c.Request.Context(), dc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteDiscount(c *gin.Context) {
	if err := h.discounts.Delete(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type recalculateRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) recalculateRating(c *gin.Context) {
	var req recalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "product_id is required",
		})
		return
	}

	rating, count, err := h.ratings.Recalculate(c.Request.Context(), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":   req.ProductID,
		"rating":       rating,
		"review_count": count,
	})
}

type confirmationEmailRequest struct {
	Order models.Order `json:"order" binding:"required"`
}

func (h *Handler) sendOrderConfirmation(c *gin.Context) {
	var req confirmationEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "order snapshot is required",
		})
		return
	}

	if err := h.mailer.SendOrderConfirmation(&req.Order); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type updateEmailRequest struct {
	Order          models.Order `json:"order" binding:"required"`
	PreviousStatus string       `json:"previous_status" binding:"required"`
	NewStatus      string       `json:"new_status" binding:"required"`
}

func (h *Handler) sendOrderUpdate(c *gin.Context) {
	var req updateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "order snapshot and status pair are required",
		})
		return
	}

	if err := h.mailer.SendOrderUpdate(&req.Order, req.PreviousStatus, req.NewStatus); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}
