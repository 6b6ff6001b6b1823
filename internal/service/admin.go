package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	recentOrdersLimit   = 10
	unknownCustomerName = "Unknown customer"
)

var dataImageRE = regexp.MustCompile(`^data:image/(png|jpeg|jpg);base64,(.+)$`)

// ProductInput is the writable part of a product
type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Type        string          `json:"type"`
	Model       string          `json:"model"`
	Stock       map[string]int  `json:"stock"`
	Sizes       []string        `json:"sizes"`
	Images      []string        `json:"images"`
	Image       string          `json:"image"`
	IsActive    *bool           `json:"isActive"`
}

func (in *ProductInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalidf("name is required")
	}
	if in.Price.IsNegative() {
		return invalidf("price must not be negative")
	}
	if in.Stock == nil {
		in.Stock = map[string]int{}
	}
	for size, qty := range in.Stock {
		if qty < 0 {
			return invalidf("stock for size %s must not be negative", size)
		}
	}
	if in.Sizes == nil {
		in.Sizes = []string{}
	}
	// Every listed size gets a stock entry.
	for _, size := range in.Sizes {
		if _, ok := in.Stock[size]; !ok {
			in.Stock[size] = 0
		}
	}
	if in.Images == nil {
		in.Images = []string{}
	}
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
	return nil
}

// DiscountRequest applies one percentage to a batch of products
type DiscountRequest struct {
	ProductIDs []string        `json:"productIds" binding:"required,min=1"`
	Discount   decimal.Decimal `json:"discount"`
}

// CategoryInput is the writable part of a category
type CategoryInput struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parentId"`
}

// AdminService backs the admin dashboard
type AdminService struct {
	store  docstore.Store
	locker Locker
	blobs  BlobStore
	now    func() time.Time
	logger *zap.Logger
}

// NewAdminService creates a new admin service. blobs may be nil, in which
// case product snapshots are skipped.
func NewAdminService(store docstore.Store, locker Locker, blobs BlobStore) *AdminService {
	return &AdminService{
		store:  store,
		locker: locker,
		blobs:  blobs,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Stats scans products, orders and users concurrently
func (s *AdminService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Stats")
	defer span.End()

	var (
		products, users []docstore.Document
		orders          []models.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.store.List(gctx, models.CollectionProducts)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = docstore.ListAs[models.Order](gctx, s.store, models.CollectionOrders)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.store.List(gctx, models.CollectionUsers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to compute stats: %w", err))
	}

	sales := decimal.Zero
	for _, o := range orders {
		sales = sales.Add(o.Total)
	}
	return &models.DashboardStats{
		TotalSales:     sales,
		TotalOrders:    len(orders),
		TotalProducts:  len(products),
		TotalCustomers: len(users),
	}, nil
}

// orderViews joins orders with their customer's name, newest first. limit
// <= 0 returns all orders.
func (s *AdminService) orderViews(ctx context.Context, limit int) ([]models.AdminOrderView, error) {
	orders, err := docstore.ListAs[models.Order](ctx, s.store, models.CollectionOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	sortOrdersNewestFirst(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}

	names := map[string]string{}
	views := make([]models.AdminOrderView, 0, len(orders))
	for _, o := range orders {
		name, ok := names[o.UserID]
		if !ok {
			name = unknownCustomerName
			if o.UserID != "" {
				u, err := getUser(ctx, s.store, o.UserID)
				switch {
				case err == nil && u.Name() != "":
					name = u.Name()
				case err != nil && !errors.Is(err, ErrNotFound):
					return nil, err
				}
			}
			names[o.UserID] = name
		}

		status := o.Status
		if status == "" {
			status = models.OrderStatusPending
		}
		views = append(views, models.AdminOrderView{
			ID:           o.ID,
			CustomerName: name,
			Total:        o.Total,
			Status:       status,
			Date:         o.CreatedAt,
			ItemCount:    o.ItemCount(),
		})
	}
	return views, nil
}

// RecentOrders returns the 10 newest orders
func (s *AdminService) RecentOrders(ctx context.Context) ([]models.AdminOrderView, error) {
	return s.orderViews(ctx, recentOrdersLimit)
}

// ListOrders returns every order with item counts, newest first
func (s *AdminService) ListOrders(ctx context.Context) ([]models.AdminOrderView, error) {
	return s.orderViews(ctx, 0)
}

// UpdateOrderStatus moves an order to another known status
func (s *AdminService) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	if !models.ValidOrderStatus(status) {
		return invalidf("invalid order status %q", status)
	}
	err := s.store.Update(ctx, models.CollectionOrders, orderID, map[string]any{
		"status":    status,
		"updatedAt": s.now(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("order", orderID)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	s.logger.Info("Order status updated", zap.String("order_id", orderID), zap.String("status", status))
	return nil
}

// ListProducts returns every product, inactive ones included
func (s *AdminService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := docstore.ListAs[models.Product](ctx, s.store, models.CollectionProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// CreateProduct stores a new product and writes its snapshot to the blob
// store. A failed snapshot leaves the product in place and returns it along
// with ErrPartialWrite.
func (s *AdminService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.CreateProduct")
	defer span.End()

	if err := in.normalize(); err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Brand:       in.Brand,
		Type:        in.Type,
		Model:       in.Model,
		Stock:       in.Stock,
		Sizes:       in.Sizes,
		Images:      in.Images,
		Image:       in.Image,
		IsActive:    in.IsActive,
		CreatedAt:   s.now(),
	}
	id, err := s.store.Add(ctx, models.CollectionProducts, p)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create product: %w", err))
	}
	p.ID = id
	s.logger.Info("Product created", zap.String("product_id", id))

	if err := s.writeSnapshot(ctx, p); err != nil {
		s.logger.Error("Failed to write product snapshot", zap.String("product_id", id), zap.Error(err))
		return p, util.RecordError(span, fmt.Errorf("%w: %v", ErrPartialWrite, err))
	}
	return p, nil
}

// writeSnapshot stores products/<id>/info.json and, for data-URL images,
// products/<id>/main.<ext>.
func (s *AdminService) writeSnapshot(ctx context.Context, p *models.Product) error {
	if s.blobs == nil {
		return nil
	}
	info, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	prefix := "products/" + p.ID + "/"
	if _, err := s.blobs.Put(ctx, prefix+"info.json", "application/json", info); err != nil {
		return fmt.Errorf("failed to store info.json: %w", err)
	}

	m := dataImageRE.FindStringSubmatch(p.Image)
	if m == nil {
		return nil
	}
	ext := m[1]
	if ext == "jpeg" {
		ext = "jpg"
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return fmt.Errorf("failed to decode inline image: %w", err)
	}
	if _, err := s.blobs.Put(ctx, prefix+"main."+ext, "image/"+m[1], data); err != nil {
		return fmt.Errorf("failed to store inline image: %w", err)
	}
	return nil
}

// ProductPatch carries the fields of a product update. Absent fields (nil
// pointers, nil maps and slices) keep their stored value.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Brand       *string          `json:"brand"`
	Type        *string          `json:"type"`
	Model       *string          `json:"model"`
	Stock       map[string]int   `json:"stock"`
	Sizes       []string         `json:"sizes"`
	Images      []string         `json:"images"`
	Image       *string          `json:"image"`
	IsActive    *bool            `json:"isActive"`
}

func (in *ProductPatch) validate() error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return invalidf("name must not be empty")
		}
		in.Name = &name
	}
	if in.Price != nil && in.Price.IsNegative() {
		return invalidf("price must not be negative")
	}
	for size, qty := range in.Stock {
		if qty < 0 {
			return invalidf("stock for size %s must not be negative", size)
		}
	}
	return nil
}

// apply merges the patch into p and returns the partial document holding
// only the fields that changed. A price change clears discount state.
func (in *ProductPatch) apply(p *models.Product) map[string]any {
	partial := map[string]any{}
	setString := func(field string, src *string, dst *string) {
		if src != nil {
			*dst = *src
			partial[field] = *src
		}
	}
	setString("name", in.Name, &p.Name)
	setString("description", in.Description, &p.Description)
	setString("category", in.Category, &p.Category)
	setString("brand", in.Brand, &p.Brand)
	setString("type", in.Type, &p.Type)
	setString("model", in.Model, &p.Model)
	setString("image", in.Image, &p.Image)

	if in.Price != nil && !in.Price.Equal(p.Price) {
		p.Price, p.Discount, p.OriginalPrice = *in.Price, decimal.Zero, nil
		partial["price"] = p.Price
		partial["discount"] = decimal.Zero
		partial["originalPrice"] = nil
	}
	if in.Images != nil {
		p.Images = in.Images
		partial["images"] = p.Images
	}
	if in.IsActive != nil {
		p.IsActive = in.IsActive
		partial["isActive"] = *in.IsActive
	}

	stockChanged := false
	if in.Stock != nil {
		p.Stock = in.Stock
		stockChanged = true
	}
	if in.Sizes != nil {
		p.Sizes = in.Sizes
		partial["sizes"] = p.Sizes
	}
	if p.Stock == nil {
		p.Stock = map[string]int{}
	}
	// Every listed size gets a stock entry.
	for _, size := range p.Sizes {
		if _, ok := p.Stock[size]; !ok {
			p.Stock[size] = 0
			stockChanged = true
		}
	}
	if stockChanged {
		partial["stock"] = p.Stock
	}
	return partial
}

// UpdateProduct merges the sent fields into a product. Unsent fields keep
// their stored value.
func (s *AdminService) UpdateProduct(ctx context.Context, id string, in ProductPatch) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *models.Product
	err := s.locker.WithLock(ctx, productLockKey(id), func(ctx context.Context) error {
		p, err := getProduct(ctx, s.store, id)
		if err != nil {
			return err
		}
		partial := in.apply(p)
		now := s.now()
		p.UpdatedAt = &now
		partial["updatedAt"] = now
		if err := s.store.Update(ctx, models.CollectionProducts, id, partial); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return updated, nil
}

// DeleteProduct removes a product
func (s *AdminService) DeleteProduct(ctx context.Context, id string) error {
	if _, err := getProduct(ctx, s.store, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, models.CollectionProducts, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

// ApplyDiscount reduces the price of every listed product by pct percent and
// records pct as the product's discount. Discounts compound on the current
// price; the pre-discount price is remembered the first time.
func (s *AdminService) ApplyDiscount(ctx context.Context, req DiscountRequest) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.ApplyDiscount")
	defer span.End()

	if len(req.ProductIDs) == 0 {
		return nil, invalidf("productIds is required")
	}
	if err := ValidateDiscount(req.Discount); err != nil {
		return nil, err
	}
	for _, id := range req.ProductIDs {
		if _, err := getProduct(ctx, s.store, id); err != nil {
			return nil, util.RecordError(span, err)
		}
	}

	updated := make([]models.Product, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		var p *models.Product
		err := s.locker.WithLock(ctx, productLockKey(id), func(ctx context.Context) error {
			var err error
			p, err = getProduct(ctx, s.store, id)
			if err != nil {
				return err
			}
			if p.OriginalPrice == nil {
				orig := p.Price
				p.OriginalPrice = &orig
			}
			p.Price = DiscountedPrice(p.Price, req.Discount)
			p.Discount = req.Discount
			now := s.now()
			p.UpdatedAt = &now
			return s.store.Update(ctx, models.CollectionProducts, id, map[string]any{
				"price":         p.Price,
				"discount":      p.Discount,
				"originalPrice": *p.OriginalPrice,
				"updatedAt":     now,
			})
		})
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to discount product %s: %w", id, err))
		}
		util.DiscountsAppliedTotal.Inc()
		updated = append(updated, *p)
	}

	s.logger.Info("Discount applied",
		zap.Int("products", len(updated)),
		zap.String("discount", req.Discount.String()))
	return updated, nil
}

// RemoveDiscount restores the price recorded before the first discount
func (s *AdminService) RemoveDiscount(ctx context.Context, id string) (*models.Product, error) {
	var p *models.Product
	err := s.locker.WithLock(ctx, productLockKey(id), func(ctx context.Context) error {
		var err error
		p, err = getProduct(ctx, s.store, id)
		if err != nil {
			return err
		}
		if p.OriginalPrice == nil {
			return invalidf("product %s has no discount", id)
		}
		p.Price = *p.OriginalPrice
		p.OriginalPrice = nil
		p.Discount = decimal.Zero
		now := s.now()
		p.UpdatedAt = &now
		return s.store.Update(ctx, models.CollectionProducts, id, map[string]any{
			"price":         p.Price,
			"discount":      p.Discount,
			"originalPrice": nil,
			"updatedAt":     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListCategories returns categories sorted by name
func (s *AdminService) ListCategories(ctx context.Context) ([]models.Category, error) {
	cats, err := docstore.ListAs[models.Category](ctx, s.store, models.CollectionCategories)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (s *AdminService) validateCategory(ctx context.Context, id string, in *CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalidf("name is required")
	}
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}
	if in.ParentID == nil {
		return nil
	}
	if *in.ParentID == id {
		return invalidf("category cannot be its own parent")
	}
	_, err := s.store.Get(ctx, models.CollectionCategories, *in.ParentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return invalidf("parent category %s does not exist", *in.ParentID)
	}
	return err
}

// CreateCategory adds a category
func (s *AdminService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if err := s.validateCategory(ctx, "", &in); err != nil {
		return nil, err
	}
	cat := &models.Category{Name: in.Name, ParentID: in.ParentID, CreatedAt: s.now()}
	id, err := s.store.Add(ctx, models.CollectionCategories, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	cat.ID = id
	return cat, nil
}

// UpdateCategory renames or re-parents a category
func (s *AdminService) UpdateCategory(ctx context.Context, id string, in CategoryInput) error {
	if err := s.validateCategory(ctx, id, &in); err != nil {
		return err
	}
	err := s.store.Update(ctx, models.CollectionCategories, id, map[string]any{
		"name":     in.Name,
		"parentId": in.ParentID,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("category", id)
	}
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category
func (s *AdminService) DeleteCategory(ctx context.Context, id string) error {
	_, err := s.store.Get(ctx, models.CollectionCategories, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("category", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get category: %w", err)
	}
	if err := s.store.Delete(ctx, models.CollectionCategories, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
