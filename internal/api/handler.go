package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"themeseller/internal/models"
	"themeseller/internal/payment"
	"themeseller/internal/service"
	"themeseller/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const userKey = "user"

// Datastore is the slice of the persistence layer the HTTP handlers
// touch directly; everything else goes through a service.
type Datastore interface {
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
	GetApprovedProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetOrderByReference(ctx context.Context, ref string) (*models.Order, error)
	MarkOrderCompleted(ctx context.Context, orderID int64) (bool, error)
	MarkOrderRefunded(ctx context.Context, orderID int64) (bool, error)
}

// CacheStore is the Redis surface: the buyer's cart plus the
// best-effort notification dedupe lock.
type CacheStore interface {
	GetCart(ctx context.Context, userID int64) ([]int64, error)
	AddToCart(ctx context.Context, userID, productID int64) error
	RemoveFromCart(ctx context.Context, userID int64, productIDs []int64) error
	AcquireNotificationLock(ctx context.Context, reference string, ttl time.Duration) (bool, error)
	ReleaseNotificationLock(ctx context.Context, reference string) error
}

// SignalProcessor applies a normalized payment-completion signal.
type SignalProcessor interface {
	Process(ctx context.Context, sig *payment.Signal) error
}

// Handler contains HTTP handlers
type Handler struct {
	store           Datastore
	redis           CacheStore
	orderService    *service.OrderService
	downloadService *service.DownloadService
	reconciler      SignalProcessor
	providers       map[string]payment.Provider
	appBaseURL      string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	st Datastore,
	redis CacheStore,
	orderService *service.OrderService,
	downloadService *service.DownloadService,
	reconciler SignalProcessor,
	providers map[string]payment.Provider,
	appBaseURL string,
) *Handler {
	return &Handler{
		store:           st,
		redis:           redis,
		orderService:    orderService,
		downloadService: downloadService,
		reconciler:      reconciler,
		providers:       providers,
		appBaseURL:      appBaseURL,
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
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		// Payment completion channels; no credential, the correlation
		// reference does the matching.
		v1.GET("/payments/callback", h.paymentCallback)
		v1.POST("/payments/webhook/:provider", h.paymentWebhook)

		authed := v1.Group("")
		authed.Use(h.authMiddleware())
		{
			authed.POST("/orders", h.createOrder)
			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/:id", h.getOrder)
			authed.GET("/orders/:id/download", h.download)
			authed.POST("/orders/:id/complete", h.completeOrder)
			authed.POST("/orders/:id/refund", h.refundOrder)

			authed.GET("/cart", h.getCart)
			authed.POST("/cart", h.addToCart)
			authed.DELETE("/cart/:productId", h.removeFromCart)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// authMiddleware resolves the Authorization bearer token to a user.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		user, err := h.store.GetUserByToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, models.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Authentication required",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify credentials",
			})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	u, _ := c.Get(userKey)
	user, _ := u.(*models.User)
	return user
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listOrders handles listing the buyer's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, items, err := h.orderService.GetOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// download authorizes an asset download for a purchased item
func (h *Handler) download(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var productID int64
	if raw := c.Query("product_id"); raw != "" {
		productID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
			return
		}
	}

	result, err := h.downloadService.Download(c.Request.Context(), currentUser(c), orderID, productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// completeOrder marks a paid order as fulfilled. Admin only.
func (h *Handler) completeOrder(c *gin.Context) {
	h.adminTransition(c, h.store.MarkOrderCompleted, models.OrderStatusCompleted)
}

// refundOrder marks a paid order as refunded. Admin only.
func (h *Handler) refundOrder(c *gin.Context) {
	h.adminTransition(c, h.store.MarkOrderRefunded, models.OrderStatusRefunded)
}

func (h *Handler) adminTransition(c *gin.Context, apply func(context.Context, int64) (bool, error), target string) {
	if user := currentUser(c); user == nil || user.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	changed, err := apply(c.Request.Context(), orderID)
	if err != nil {
		util.GetLogger().Error("Order transition failed",
			zap.Int64("order_id", orderID),
			zap.String("target", target),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
		return
	}
	if !changed {
		c.JSON(http.StatusConflict, gin.H{"error": "Order cannot transition to " + target})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": target})
}

// paymentCallback handles the browser redirect after hosted checkout.
// The caller is a navigation, so the response is always a redirect.
func (h *Handler) paymentCallback(c *gin.Context) {
	reference := c.Query("reference")
	status := c.Query("status")

	// Provider is left unset: the reconciler resolves it from the
	// matched order, so Stripe-originated callbacks are not mislabeled.
	sig := &payment.Signal{
		Reference: reference,
		RawStatus: status,
	}

	failureURL := fmt.Sprintf("%s/payment/failed", h.appBaseURL)
	if reference == "" {
		c.Redirect(http.StatusFound, failureURL)
		return
	}

	if err := h.reconciler.Process(c.Request.Context(), sig); err != nil {
		util.GetLogger().Error("Callback reconciliation failed",
			zap.String("reference", reference),
			zap.Error(err))
	}

	// The redirect reflects the reconciled order state, not the
	// client-controlled status param.
	order, err := h.store.GetOrderByReference(c.Request.Context(), reference)
	if err == nil && (order.Status == models.OrderStatusPaid || order.Status == models.OrderStatusCompleted) {
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/success?order=%s", h.appBaseURL, order.OrderNumber))
		return
	}
	c.Redirect(http.StatusFound, failureURL)
}

// paymentWebhook handles server-to-server completion notifications.
// It always acknowledges: a non-2xx here would make the provider
// redeliver indefinitely.
func (h *Handler) paymentWebhook(c *gin.Context) {
	logger := util.GetLogger()
	ack := func() {
		c.JSON(http.StatusOK, gin.H{"received": true})
	}

	provider, ok := h.providers[c.Param("provider")]
	if !ok {
		logger.Warn("Webhook for unknown provider", zap.String("provider", c.Param("provider")))
		ack()
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Warn("Failed to read webhook body", zap.Error(err))
		ack()
		return
	}

	sig, err := provider.ParseNotification(c.Request.Header, body)
	if err != nil {
		logger.Warn("Discarding unparseable webhook",
			zap.String("provider", provider.Name()),
			zap.Error(err))
		ack()
		return
	}

	// Best-effort dedupe across the webhook/callback pair. The
	// conditional status update is the authoritative guard, so a
	// contended lock is only logged and processing continues: dropping
	// the redelivery here would lose it if the lock holder fails.
	lockKey := fmt.Sprintf("%s:%s", sig.Provider, sig.Reference)
	locked, err := h.redis.AcquireNotificationLock(c.Request.Context(), lockKey, 30*time.Second)
	if err == nil && !locked {
		logger.Info("Concurrent notification already in flight",
			zap.String("reference", sig.Reference))
	}
	if locked {
		defer func() {
			_ = h.redis.ReleaseNotificationLock(c.Request.Context(), lockKey)
		}()
	}

	if err := h.reconciler.Process(c.Request.Context(), sig); err != nil {
		logger.Error("Webhook reconciliation failed",
			zap.String("provider", sig.Provider),
			zap.String("reference", sig.Reference),
			zap.Error(err))
	}

	ack()
}

// listProducts returns the purchasable catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetApprovedProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one product
func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// getCart returns the buyer's cart
func (h *Handler) getCart(c *gin.Context) {
	ids, err := h.redis.GetCart(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_ids": ids})
}

type cartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
}

// addToCart adds a product to the buyer's cart
func (h *Handler) addToCart(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.store.GetProductByID(c.Request.Context(), req.ProductID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.redis.AddToCart(c.Request.Context(), currentUser(c).ID, req.ProductID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": req.ProductID})
}

// removeFromCart removes a product from the buyer's cart
func (h *Handler) removeFromCart(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	if err := h.redis.RemoveFromCart(c.Request.Context(), currentUser(c).ID, []int64{productID}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": productID})
}

// respondError maps domain errors onto HTTP statuses with a reason the
// buyer-facing UI can act on.
func respondError(c *gin.Context, err error) {
	var unavailable *models.ProductUnavailableError
	var provider *models.ProviderError

	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       "Some products are not available for purchase",
			"product_ids": unavailable.ProductIDs,
		})
	case errors.Is(err, models.ErrAlreadyPurchased):
		c.JSON(http.StatusConflict, gin.H{"error": "Product already purchased", "details": err.Error()})
	case errors.Is(err, models.ErrProviderUnconfigured):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider not configured"})
	case errors.As(err, &provider):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider error", "provider": provider.Provider})
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrOrderItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, models.ErrOrderNotPaid):
		c.JSON(http.StatusForbidden, gin.H{"error": "Order is not paid"})
	case errors.Is(err, models.ErrDownloadLimitReached):
		c.JSON(http.StatusForbidden, gin.H{"error": "Download limit reached"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
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
