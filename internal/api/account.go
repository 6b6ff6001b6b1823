package api

import (
	"net/http"

	"shoe-store/internal/identity"
	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	identity.Credentials
	DisplayName string `json:"displayName"`
}

// register creates credentials and the matching user document
func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	session, err := h.svc.Identity.Register(ctx, req.Credentials)
	if err != nil {
		h.respondError(c, err)
		return
	}
	email, err := h.svc.Identity.Email(ctx, session.Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	user, _, err := h.svc.Users.Sync(ctx, session.Subject, service.SyncUserRequest{
		Email:       email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session": session,
		"user":    user,
	})
}

func (h *Handler) login(c *gin.Context) {
	var creds identity.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	session, err := h.svc.Identity.SignIn(c.Request.Context(), creds)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.svc.Users.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// syncUser creates the caller's user document on first sign-in
func (h *Handler) syncUser(c *gin.Context) {
	var req service.SyncUserRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	ctx := c.Request.Context()
	uid := currentUser(c)
	email, err := h.svc.Identity.Email(ctx, uid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	req.Email = email

	user, created, err := h.svc.Users.Sync(ctx, uid, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, user)
}

// getUser returns a user document. Callers may read their own document;
// admins may read anyone's.
func (h *Handler) getUser(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("uid")
	if uid != currentUser(c) {
		if err := h.svc.Users.RequireAdmin(ctx, currentUser(c)); err != nil {
			h.respondError(c, err)
			return
		}
	}

	user, err := h.svc.Users.Get(ctx, uid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addrs, err := h.svc.Addresses.List(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}

func (h *Handler) addAddress(c *gin.Context) {
	var in service.AddressInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	addr, err := h.svc.Addresses.Add(c.Request.Context(), currentUser(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, addr)
}

func (h *Handler) updateAddress(c *gin.Context) {
	var in service.AddressInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	addr, err := h.svc.Addresses.Update(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	if err := h.svc.Addresses.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address deleted"})
}
