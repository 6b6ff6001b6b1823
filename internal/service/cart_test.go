package service

import (
	"context"
	"errors"
	"testing"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAddItemMergesSameProductAndSize(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{Name: "Runner", Sizes: []string{"41", "42"}, Price: dec("50")})
	svc := NewCartService(store, NewLocalLocker())

	_, err := svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: id, Size: "42", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: id, Size: "42", Quantity: 2})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: id, Size: "41"})
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, models.CartItem{ProductID: id, Size: "42", Quantity: 3}, cart.Items[0])
	assert.Equal(t, models.CartItem{ProductID: id, Size: "41", Quantity: 1}, cart.Items[1])
}

func TestCartAddItemValidation(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{Name: "Runner", Sizes: []string{"42"}})
	inactive := seedProduct(t, store, models.Product{Name: "Old", IsActive: boolPtr(false)})
	svc := NewCartService(store, NewLocalLocker())

	_, err := svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: "nope", Quantity: 1})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: id, Size: "39", Quantity: 1})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: id, Quantity: -2})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: inactive, Quantity: 1})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestGetCartJoinsProducts(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	id := seedProduct(t, store, models.Product{Name: "Runner"})
	require.NoError(t, store.Set(ctx, models.CollectionCarts, "u1", models.Cart{
		UserID: "u1",
		Items: []models.CartItem{
			{ProductID: id, Quantity: 1},
			{ProductID: "deleted", Quantity: 2},
		},
	}))
	svc := NewCartService(store, NewLocalLocker())

	view, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	require.NotNil(t, view.Items[0].Product)
	assert.Equal(t, "Runner", view.Items[0].Product.Name)
	assert.Nil(t, view.Items[1].Product)
	assert.Equal(t, 2, view.Items[1].Quantity)

	empty, err := svc.GetCart(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func TestCartRemoveItemAndClear(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	a := seedProduct(t, store, models.Product{Name: "A"})
	b := seedProduct(t, store, models.Product{Name: "B"})
	svc := NewCartService(store, NewLocalLocker())

	_, err := svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: a, Size: "40", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: a, Size: "41", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", AddCartItemRequest{ProductID: b, Quantity: 1})
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "u1", a, "")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, b, cart.Items[0].ProductID)

	_, err = svc.RemoveItem(ctx, "u1", a, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, svc.Clear(ctx, "u1"))
	_, err = store.Get(ctx, models.CollectionCarts, "u1")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}
