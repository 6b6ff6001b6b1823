package api

import (
	"errors"
	"net/http"

	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) adminStats(c *gin.Context) {
	stats, err := h.svc.Admin.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) adminRecentOrders(c *gin.Context) {
	orders, err := h.svc.Admin.RecentOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	orders, err := h.svc.Admin.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) adminUpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := h.svc.Admin.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
}

func (h *Handler) adminListProducts(c *gin.Context) {
	products, err := h.svc.Admin.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// adminCreateProduct answers 500 with the product id when the product was
// stored but its snapshot was not.
func (h *Handler) adminCreateProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.svc.Admin.CreateProduct(c.Request.Context(), in)
	if errors.Is(err, service.ErrPartialWrite) && p != nil {
		body := gin.H{"error": service.ErrPartialWrite.Error(), "productId": p.ID}
		if h.opts.ExposeErrors {
			body["details"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Product created",
		"productId": p.ID,
		"product":   p,
	})
}

func (h *Handler) adminUpdateProduct(c *gin.Context) {
	var in service.ProductPatch
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.svc.Admin.UpdateProduct(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Product updated",
		"productId": p.ID,
		"product":   p,
	})
}

func (h *Handler) adminDeleteProduct(c *gin.Context) {
	if err := h.svc.Admin.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func (h *Handler) adminStockSummary(c *gin.Context) {
	sum, err := h.svc.Inventory.StockSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type restockRequest struct {
	Size     string `json:"size" binding:"required"`
	Quantity *int   `json:"quantity" binding:"required"`
}

func (h *Handler) adminRestock(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.svc.Inventory.Restock(c.Request.Context(), c.Param("id"), req.Size, *req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) adminStockAlerts(c *gin.Context) {
	report, err := h.svc.Inventory.StockAlerts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) adminApplyDiscount(c *gin.Context) {
	var req service.DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	products, err := h.svc.Admin.ApplyDiscount(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Discount applied",
		"updated":  len(products),
		"products": products,
	})
}

func (h *Handler) adminRemoveDiscount(c *gin.Context) {
	p, err := h.svc.Admin.RemoveDiscount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) adminListUsers(c *gin.Context) {
	users, err := h.svc.Users.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) adminUpdateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if c.Param("id") == currentUser(c) {
		badRequest(c, "Cannot change your own role", nil)
		return
	}

	if err := h.svc.Users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User role updated"})
}

func (h *Handler) adminListCategories(c *gin.Context) {
	cats, err := h.svc.Admin.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *Handler) adminCreateCategory(c *gin.Context) {
	var in service.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	cat, err := h.svc.Admin.CreateCategory(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) adminUpdateCategory(c *gin.Context) {
	var in service.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.svc.Admin.UpdateCategory(c.Request.Context(), c.Param("id"), in); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category updated"})
}

func (h *Handler) adminDeleteCategory(c *gin.Context) {
	if err := h.svc.Admin.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}

func (h *Handler) adminListAddresses(c *gin.Context) {
	addrs, err := h.svc.Addresses.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}

func (h *Handler) adminUpdateAddress(c *gin.Context) {
	var in service.AddressInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	view, err := h.svc.Addresses.AdminUpdate(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) adminListNotifications(c *gin.Context) {
	feed, err := h.svc.Notifications.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) adminMarkNotificationRead(c *gin.Context) {
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// adminMarkAllNotificationsRead marks the whole feed as read
func (h *Handler) adminMarkAllNotificationsRead(c *gin.Context) {
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notifications marked as read", "updated": n})
}
