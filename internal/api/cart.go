package api

import (
	"net/http"

	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.svc.Cart.GetCart(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req service.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	cart, err := h.svc.Cart.AddItem(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// removeFromCart drops a product; ?size= limits removal to one size.
func (h *Handler) removeFromCart(c *gin.Context) {
	cart, err := h.svc.Cart.RemoveItem(c.Request.Context(), currentUser(c), c.Param("productId"), c.Query("size"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.svc.Cart.Clear(c.Request.Context(), currentUser(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// createOrder checks out the caller's cart. An Idempotency-Key header makes
// retries return the first order.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      order.ID,
		"message": "Order created",
		"order":   order,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListUserOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetUserOrder(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
