package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"shoe-store/internal/identity"
	"shoe-store/internal/service"
	"shoe-store/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services groups the domain services the handlers call
type Services struct {
	Identity  *identity.Provider
	Users     *service.UserService
	Catalog   *service.CatalogService
	Cart      *service.CartService
	Orders    *service.OrderService
	Addresses *service.AddressService
	Inventory *service.InventoryService
	Admin     *service.AdminService
	// Notifications backs the admin notification feed
	Notifications *service.NotificationService
	// Uploads stores through the configured backend, LocalUploads always on
	// local disk.
	Uploads      *service.UploadService
	LocalUploads *service.UploadService
}

// Options tune the HTTP surface
type Options struct {
	// ExposeErrors echoes raw error text in 500 responses.
	ExposeErrors   bool
	UploadDir      string
	MaxUploadBytes int64
	// ReadinessChecks are run by /ready; any failure reports not ready.
	ReadinessChecks map[string]func(context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/api/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.opts.UploadDir != "" {
		router.Static("/uploads", h.opts.UploadDir)
	}

	apiGroup := router.Group("/api")

	auth := apiGroup.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.GET("/me", h.authenticate(), h.me)
	}

	apiGroup.GET("/products", h.listProducts)
	apiGroup.GET("/products/:id", h.getProduct)
	apiGroup.GET("/categories", h.listCategories)
	apiGroup.GET("/brands", h.listBrands)
	apiGroup.GET("/types", h.listTypes)

	authed := apiGroup.Group("", h.authenticate())
	{
		authed.POST("/user/sync", h.syncUser)
		authed.GET("/user/:uid", h.getUser)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.addToCart)
		authed.DELETE("/cart", h.clearCart)
		authed.DELETE("/cart/:productId", h.removeFromCart)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)

		authed.GET("/addresses", h.listAddresses)
		authed.POST("/addresses", h.addAddress)
		authed.PUT("/addresses/:id", h.updateAddress)
		authed.DELETE("/addresses/:id", h.deleteAddress)

		upload := authed.Group("/upload")
		upload.POST("/upload-image", h.uploadImage)
		upload.POST("/upload-images", h.uploadImages)
		upload.POST("/upload-image-local", h.uploadImageLocal)
	}

	admin := apiGroup.Group("/admin", h.authenticate(), h.requireAdmin())
	{
		admin.GET("/stats", h.adminStats)
		admin.GET("/recent-orders", h.adminRecentOrders)
		admin.GET("/orders", h.adminListOrders)
		admin.PUT("/orders/:id/status", h.adminUpdateOrderStatus)

		admin.GET("/products", h.adminListProducts)
		admin.POST("/products", h.adminCreateProduct)
		admin.PUT("/products/:id", h.adminUpdateProduct)
		admin.DELETE("/products/:id", h.adminDeleteProduct)
		admin.GET("/products/:id/stock", h.adminStockSummary)
		admin.PUT("/products/:id/stock", h.adminRestock)
		admin.DELETE("/products/:id/discount", h.adminRemoveDiscount)
		admin.POST("/discounts", h.adminApplyDiscount)
		admin.GET("/stock-alerts", h.adminStockAlerts)

		admin.GET("/users", h.adminListUsers)
		admin.PUT("/users/:id/role", h.adminUpdateRole)

		admin.GET("/categories", h.adminListCategories)
		admin.POST("/categories", h.adminCreateCategory)
		admin.PUT("/categories/:id", h.adminUpdateCategory)
		admin.DELETE("/categories/:id", h.adminDeleteCategory)

		admin.GET("/notifications", h.adminListNotifications)
		admin.PUT("/notifications", h.adminMarkAllNotificationsRead)
		admin.PUT("/notifications/:id/read", h.adminMarkNotificationRead)

		admin.GET("/addresses", h.adminListAddresses)
		admin.PUT("/addresses/:id", h.adminUpdateAddress)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.opts.ReadinessChecks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
