package api

import (
	"net/http"
	"strconv"

	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func parseDecimalQuery(c *gin.Context, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseIntQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// productQuery reads catalog filters from the query string.
func productQuery(c *gin.Context) (service.ProductQuery, error) {
	q := service.ProductQuery{
		Category:   c.Query("category"),
		Brand:      c.Query("brand"),
		Type:       c.Query("type"),
		Search:     c.DefaultQuery("search", c.Query("q")),
		Sort:       c.Query("sort"),
		ActiveOnly: true,
	}

	var err error
	if raw := c.Query("onSale"); raw != "" {
		if q.OnSale, err = strconv.ParseBool(raw); err != nil {
			return q, err
		}
	}
	if q.MinPrice, err = parseDecimalQuery(c, "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = parseDecimalQuery(c, "maxPrice"); err != nil {
		return q, err
	}
	if q.Page, err = parseIntQuery(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = parseIntQuery(c, "pageSize"); err != nil {
		return q, err
	}
	return q, nil
}

// listProducts serves the storefront catalog. Without pageSize the whole
// filtered list is returned.
func (h *Handler) listProducts(c *gin.Context) {
	q, err := productQuery(c)
	if err != nil {
		badRequest(c, "Invalid query parameters", err)
		return
	}

	page, err := h.svc.Catalog.ListProducts(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listCategories(c *gin.Context) {
	cats, err := h.svc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.svc.Catalog.ListBrands(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brands)
}

func (h *Handler) listTypes(c *gin.Context) {
	types, err := h.svc.Catalog.ListTypes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}
