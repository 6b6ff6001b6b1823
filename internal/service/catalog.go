package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sort orders accepted by the catalog
const (
	SortDefault   = ""
	SortName      = "name"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortNewest    = "newest"
	// Sale view orders
	SortDiscountHigh = "discount-high"
	SortDiscountLow  = "discount-low"
)

// categoryAll is the storefront's "no category filter" value.
const categoryAll = "all"

const (
	defaultPageSize = 24
	maxPageSize     = 100
)

// ProductQuery describes a catalog view. Zero values disable a predicate.
type ProductQuery struct {
	Category string
	Brand    string
	Type     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Search   string
	// OnSale keeps only products with a discount.
	OnSale     bool
	Sort       string
	Page       int
	PageSize   int
	ActiveOnly bool
}

// ProductPage is one page of a catalog view.
type ProductPage struct {
	Items    []models.Product `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

func validSort(s string) bool {
	switch s {
	case SortDefault, SortName, SortPriceLow, SortPriceHigh, SortNewest,
		SortDiscountHigh, SortDiscountLow:
		return true
	}
	return false
}

// FilterProducts keeps the products matching every predicate of q. The input
// order is preserved.
func FilterProducts(products []models.Product, q ProductQuery) ([]models.Product, error) {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]models.Product, 0, len(products))
	for i := range products {
		p := &products[i]
		if q.ActiveOnly && !p.Active() {
			continue
		}
		if q.Category != "" && q.Category != categoryAll && p.Category != q.Category {
			continue
		}
		if q.Brand != "" && p.Brand != q.Brand {
			continue
		}
		if q.Type != "" && p.Type != q.Type {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		if q.OnSale && !p.Discount.IsPositive() {
			continue
		}
		if term != "" {
			if p.Name == "" || p.Description == "" {
				return nil, fmt.Errorf("%w: product %s has no name or description", ErrDataIntegrity, p.ID)
			}
			if !strings.Contains(strings.ToLower(p.Name), term) &&
				!strings.Contains(strings.ToLower(p.Description), term) &&
				!strings.Contains(strings.ToLower(p.Brand), term) {
				continue
			}
		}
		out = append(out, *p)
	}
	return out, nil
}

// SortProducts sorts in place. Ties keep their relative order; the default
// order leaves the slice untouched.
func SortProducts(products []models.Product, order string) {
	var less func(a, b *models.Product) bool
	switch order {
	case SortName:
		col := collate.New(language.Und, collate.IgnoreCase)
		less = func(a, b *models.Product) bool { return col.CompareString(a.Name, b.Name) < 0 }
	case SortPriceLow:
		less = func(a, b *models.Product) bool { return a.Price.LessThan(b.Price) }
	case SortPriceHigh:
		less = func(a, b *models.Product) bool { return a.Price.GreaterThan(b.Price) }
	case SortNewest:
		less = func(a, b *models.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortDiscountHigh:
		less = func(a, b *models.Product) bool { return a.Discount.GreaterThan(b.Discount) }
	case SortDiscountLow:
		less = func(a, b *models.Product) bool { return a.Discount.LessThan(b.Discount) }
	default:
		return
	}
	sort.SliceStable(products, func(i, j int) bool { return less(&products[i], &products[j]) })
}

// Paginate slices out a 1-based page. A page size of zero returns everything.
func Paginate(products []models.Product, page, pageSize int) []models.Product {
	if pageSize <= 0 {
		return products
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(products) {
		return []models.Product{}
	}
	end := start + pageSize
	if end > len(products) {
		end = len(products)
	}
	return products[start:end]
}

// CatalogService serves the storefront catalog
type CatalogService struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store docstore.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// storeFilters pushes equality and range predicates down to the store.
func storeFilters(q ProductQuery) []docstore.Filter {
	var filters []docstore.Filter
	if q.Category != "" && q.Category != categoryAll {
		filters = append(filters, docstore.Where("category", docstore.OpEq, q.Category))
	}
	if q.Brand != "" {
		filters = append(filters, docstore.Where("brand", docstore.OpEq, q.Brand))
	}
	if q.Type != "" {
		filters = append(filters, docstore.Where("type", docstore.OpEq, q.Type))
	}
	if q.MinPrice != nil {
		filters = append(filters, docstore.Where("price", docstore.OpGte, *q.MinPrice))
	}
	if q.MaxPrice != nil {
		filters = append(filters, docstore.Where("price", docstore.OpLte, *q.MaxPrice))
	}
	if q.OnSale {
		filters = append(filters, docstore.Where("discount", docstore.OpGt, 0))
	}
	return filters
}

// ListProducts returns a filtered, sorted page of products
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if !validSort(q.Sort) {
		return nil, invalidf("unknown sort order %q", q.Sort)
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, invalidf("minPrice must not exceed maxPrice")
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	products, err := docstore.ListAs[models.Product](ctx, s.store, models.CollectionProducts, storeFilters(q)...)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to list products: %w", err))
	}

	// The store already applied the equality and range predicates; the rest
	// runs in memory.
	filtered, err := FilterProducts(products, q)
	if err != nil {
		s.logger.Error("Catalog data integrity error", zap.Error(err))
		return nil, util.RecordError(span, err)
	}
	SortProducts(filtered, q.Sort)

	page := q.Page
	if page < 1 {
		page = 1
	}
	return &ProductPage{
		Items:    Paginate(filtered, page, q.PageSize),
		Total:    len(filtered),
		Page:     page,
		PageSize: q.PageSize,
	}, nil
}

// GetProduct returns a single product. Inactive products are hidden unless
// includeInactive is set.
func (s *CatalogService) GetProduct(ctx context.Context, id string, includeInactive bool) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	p, err := getProduct(ctx, s.store, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if !includeInactive && !p.Active() {
		return nil, notFound("product", id)
	}
	return p, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	cats, err := docstore.ListAs[models.Category](ctx, s.store, models.CollectionCategories)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return cats, nil
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	brands, err := docstore.ListAs[models.Brand](ctx, s.store, models.CollectionBrands)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

func (s *CatalogService) ListTypes(ctx context.Context) ([]models.ProductType, error) {
	types, err := docstore.ListAs[models.ProductType](ctx, s.store, models.CollectionTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list types: %w", err)
	}
	return types, nil
}

func getProduct(ctx context.Context, store docstore.Store, id string) (*models.Product, error) {
	p, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}
