package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdmin(store docstore.Store, blobs BlobStore) *AdminService {
	return NewAdminService(store, NewLocalLocker(), blobs)
}

func TestAdminStats(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedProduct(t, store, models.Product{Name: "A"})
	seedProduct(t, store, models.Product{Name: "B"})
	seedUser(t, store, models.User{ID: "u1"})
	for _, total := range []string{"10.50", "20.25"} {
		_, err := store.Add(ctx, models.CollectionOrders, models.Order{UserID: "u1", Total: dec(total)})
		require.NoError(t, err)
	}

	stats, err := newAdmin(store, nil).Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSales.Equal(dec("30.75")))
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.TotalCustomers)
}

func TestAdminRecentOrders(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedUser(t, store, models.User{ID: "u1", Email: "a@example.com", DisplayName: "Ayse"})
	seedUser(t, store, models.User{ID: "u2", Email: "b@example.com"})
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	users := []string{"u1", "u2", "ghost"}
	for i := 0; i < 12; i++ {
		_, err := store.Add(ctx, models.CollectionOrders, models.Order{
			UserID:    users[i%3],
			Total:     dec("5"),
			Items:     []models.OrderItem{{ProductID: "p", Quantity: 2}, {ProductID: "q", Quantity: 1}},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	svc := newAdmin(store, nil)

	recent, err := svc.RecentOrders(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	// i=11 is the newest and belongs to the missing user
	assert.Equal(t, unknownCustomerName, recent[0].CustomerName)
	assert.Equal(t, "b@example.com", recent[1].CustomerName)
	assert.Equal(t, "Ayse", recent[2].CustomerName)
	assert.Equal(t, models.OrderStatusPending, recent[0].Status)
	assert.Equal(t, 3, recent[0].ItemCount)

	all, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	require.NoError(t, svc.UpdateOrderStatus(ctx, all[0].ID, models.OrderStatusShipped))
	assert.True(t, errors.Is(svc.UpdateOrderStatus(ctx, all[0].ID, "lost"), ErrInvalidInput))
	assert.True(t, errors.Is(svc.UpdateOrderStatus(ctx, "nope", models.OrderStatusShipped), ErrNotFound))
}

func TestApplyAndRemoveDiscount(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	a := seedProduct(t, store, models.Product{Name: "A", Price: dec("100")})
	b := seedProduct(t, store, models.Product{Name: "B", Price: dec("59.99")})
	svc := newAdmin(store, nil)

	updated, err := svc.ApplyDiscount(ctx, DiscountRequest{ProductIDs: []string{a, b}, Discount: dec("20")})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.True(t, updated[0].Price.Equal(dec("80.00")))
	assert.True(t, updated[0].Discount.Equal(dec("20")))
	assert.True(t, updated[1].Price.Equal(dec("47.99")))

	stored, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, a)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(dec("80")))
	require.NotNil(t, stored.OriginalPrice)
	assert.True(t, stored.OriginalPrice.Equal(dec("100")))

	// a second discount compounds but keeps the first original price
	_, err = svc.ApplyDiscount(ctx, DiscountRequest{ProductIDs: []string{a}, Discount: dec("50")})
	require.NoError(t, err)
	stored, err = docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, a)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(dec("40")))
	assert.True(t, stored.OriginalPrice.Equal(dec("100")))

	restored, err := svc.RemoveDiscount(ctx, a)
	require.NoError(t, err)
	assert.True(t, restored.Price.Equal(dec("100")))
	assert.True(t, restored.Discount.IsZero())

	_, err = svc.RemoveDiscount(ctx, a)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestApplyDiscountValidation(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	a := seedProduct(t, store, models.Product{Name: "A", Price: dec("100")})
	svc := newAdmin(store, nil)

	_, err := svc.ApplyDiscount(ctx, DiscountRequest{ProductIDs: []string{a}, Discount: dec("100")})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.ApplyDiscount(ctx, DiscountRequest{ProductIDs: []string{a, "missing"}, Discount: dec("10")})
	assert.True(t, errors.Is(err, ErrNotFound))

	stored, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, a)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(dec("100")), "no partial batch")
}

func TestCreateProductDefaultsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	blobs := newMemoryBlobs()
	svc := newAdmin(store, blobs)

	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	p, err := svc.CreateProduct(ctx, ProductInput{
		Name:  "Runner",
		Price: dec("75"),
		Sizes: []string{"40", "41"},
		Stock: map[string]int{"40": 3},
		Image: img,
	})
	require.NoError(t, err)
	assert.True(t, p.Active())
	assert.Equal(t, map[string]int{"40": 3, "41": 0}, p.Stock)

	info, ok := blobs.objects["products/"+p.ID+"/info.json"]
	require.True(t, ok)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(info, &snapshot))
	assert.Equal(t, p.ID, snapshot["id"])
	assert.Equal(t, []byte("png-bytes"), blobs.objects["products/"+p.ID+"/main.png"])

	_, err = svc.CreateProduct(ctx, ProductInput{Name: " "})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCreateProductSnapshotFailureKeepsDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	blobs := newMemoryBlobs()
	blobs.failOn = "info.json"
	svc := newAdmin(store, blobs)

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Runner", Price: dec("10")})
	assert.True(t, errors.Is(err, ErrPartialWrite))
	require.NotNil(t, p)

	stored, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Runner", stored.Name)
}

func TestUpdateProductResetsDiscountOnPriceChange(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{Name: "A", Price: dec("100")})
	svc := newAdmin(store, nil)

	_, err := svc.ApplyDiscount(ctx, DiscountRequest{ProductIDs: []string{id}, Discount: dec("10")})
	require.NoError(t, err)

	same := dec("90")
	p, err := svc.UpdateProduct(ctx, id, ProductPatch{Name: strPtr("A2"), Price: &same, IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "A2", p.Name)
	assert.True(t, p.Discount.Equal(dec("10")), "unchanged price keeps the discount")
	assert.False(t, p.Active())

	higher := dec("120")
	p, err = svc.UpdateProduct(ctx, id, ProductPatch{Price: &higher, IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, p.Discount.IsZero())
	assert.Nil(t, p.OriginalPrice)
	assert.True(t, p.Active())
	assert.Equal(t, "A2", p.Name)

	_, err = svc.UpdateProduct(ctx, "missing", ProductPatch{Name: strPtr("x")})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.UpdateProduct(ctx, id, ProductPatch{Name: strPtr("  ")})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	require.NoError(t, svc.DeleteProduct(ctx, id))
	assert.True(t, errors.Is(svc.DeleteProduct(ctx, id), ErrNotFound))
}

func TestUpdateProductKeepsUnsentFields(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{
		Name:   "Nike",
		Price:  dec("100"),
		Stock:  map[string]int{"40": 7},
		Sizes:  []string{"40"},
		Images: []string{"a.jpg"},
		Brand:  "Nike",
	})
	svc := newAdmin(store, nil)

	_, err := svc.UpdateProduct(ctx, id, ProductPatch{Name: strPtr("Nike Air"), IsActive: boolPtr(false)})
	require.NoError(t, err)

	stored, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, id)
	require.NoError(t, err)
	assert.Equal(t, "Nike Air", stored.Name)
	assert.False(t, stored.Active())
	assert.True(t, stored.Price.Equal(dec("100")), stored.Price.String())
	assert.Equal(t, map[string]int{"40": 7}, stored.Stock)
	assert.Equal(t, []string{"40"}, stored.Sizes)
	assert.Equal(t, []string{"a.jpg"}, stored.Images)
	assert.Equal(t, "Nike", stored.Brand)
}

func TestUpdateProductSizesFillStock(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{
		Name:  "Runner",
		Price: dec("50"),
		Stock: map[string]int{"40": 2},
		Sizes: []string{"40"},
	})
	svc := newAdmin(store, nil)

	p, err := svc.UpdateProduct(ctx, id, ProductPatch{Sizes: []string{"40", "41"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"40": 2, "41": 0}, p.Stock)

	stored, err := docstore.GetAs[models.Product](ctx, store, models.CollectionProducts, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"40": 2, "41": 0}, stored.Stock)

	_, err = svc.UpdateProduct(ctx, id, ProductPatch{Stock: map[string]int{"40": -1}})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCategoryCRUD(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := newAdmin(store, nil)

	shoes, err := svc.CreateCategory(ctx, CategoryInput{Name: "Shoes"})
	require.NoError(t, err)
	parent := shoes.ID
	boots, err := svc.CreateCategory(ctx, CategoryInput{Name: "Boots", ParentID: &parent})
	require.NoError(t, err)

	bad := "nope"
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "X", ParentID: &bad})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	self := boots.ID
	assert.True(t, errors.Is(svc.UpdateCategory(ctx, boots.ID, CategoryInput{Name: "Boots", ParentID: &self}), ErrInvalidInput))
	require.NoError(t, svc.UpdateCategory(ctx, boots.ID, CategoryInput{Name: "Ankle Boots"}))

	cats, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Ankle Boots", cats[0].Name)
	assert.Nil(t, cats[0].ParentID)

	require.NoError(t, svc.DeleteCategory(ctx, boots.ID))
	assert.True(t, errors.Is(svc.UpdateCategory(ctx, boots.ID, CategoryInput{Name: "x"}), ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteCategory(ctx, boots.ID), ErrNotFound))
}
