package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"shoe-store/internal/blobstore"
	"shoe-store/internal/docstore"
	"shoe-store/internal/identity"
	"shoe-store/internal/models"
	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (nopPublisher) PublishStockLevelChanged(context.Context, *models.StockLevelEvent) error {
	return nil
}

func (nopPublisher) PublishProductRestocked(context.Context, *models.ProductRestockedEvent) error {
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *docstore.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemoryStore()
	locker := service.NewLocalLocker()
	blobs, err := blobstore.NewLocalStore(t.TempDir(), "http://localhost:5000/uploads")
	require.NoError(t, err)
	uploads := service.NewUploadService(store, blobs, 0)

	h := NewHandler(Services{
		Identity:      identity.NewProvider(store, locker, "test-secret", "shoe-store", time.Hour),
		Users:         service.NewUserService(store, locker),
		Catalog:       service.NewCatalogService(store),
		Cart:          service.NewCartService(store, locker),
		Orders:        service.NewOrderService(store, locker, nopPublisher{}, nil, time.Hour),
		Addresses:     service.NewAddressService(store, locker),
		Inventory:     service.NewInventoryService(store, locker, nopPublisher{}, 5, 5),
		Admin:         service.NewAdminService(store, locker, blobs),
		Notifications: service.NewNotificationService(store),
		Uploads:       uploads,
		LocalUploads:  uploads,
	}, Options{UploadDir: blobs.Root()})

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// register signs up a user and returns its token and uid.
func (s *testServer) register(t *testing.T, email string) (string, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":       email,
		"password":    "secret1",
		"displayName": "Tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Session identity.Session `json:"session"`
	}
	decodeBody(t, w, &resp)
	return resp.Session.Token, resp.Session.Subject
}

func (s *testServer) promote(t *testing.T, uid string) {
	t.Helper()
	require.NoError(t, s.store.Update(context.Background(), models.CollectionUsers, uid, map[string]any{"role": models.RoleAdmin}))
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)

	w = s.do(t, http.MethodGet, "/api/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListProductsFiltersAndHidesInactive(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	inactive := false
	for _, p := range []models.Product{
		{Name: "Nike Air", Description: "runner", Brand: "Nike", Category: "running", Price: decimalOf("120")},
		{Name: "Adidas Run", Description: "trainer", Brand: "Adidas", Category: "running", Price: decimalOf("90")},
		{Name: "Nike Old", Description: "gone", Brand: "Nike", Category: "running", Price: decimalOf("50"), IsActive: &inactive},
	} {
		_, err := s.store.Add(ctx, models.CollectionProducts, p)
		require.NoError(t, err)
	}

	w := s.do(t, http.MethodGet, "/api/products?search=nike", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page service.ProductPage
	decodeBody(t, w, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Nike Air", page.Items[0].Name)

	w = s.do(t, http.MethodGet, "/api/products?category=all&sort=price-low", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Adidas Run", page.Items[0].Name)

	w = s.do(t, http.MethodGet, "/api/products?minPrice=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "buyer@example.com")
	productID, err := s.store.Add(context.Background(), models.CollectionProducts, models.Product{
		Name: "Runner", Price: decimalOf("40"), Sizes: []string{"42"},
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/addresses", token, gin.H{
		"title": "Home", "fullAddress": "Street 1", "city": "Izmir", "isDefault": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/cart", token, gin.H{"productId": productID, "size": "42", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cart service.CartView
	decodeBody(t, w, &cart)
	require.Len(t, cart.Items, 1)
	require.NotNil(t, cart.Items[0].Product)

	w = s.do(t, http.MethodPost, "/api/orders", token, gin.H{"total": 80})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID    string       `json:"id"`
		Order models.Order `json:"order"`
	}
	decodeBody(t, w, &created)
	assert.Equal(t, models.OrderStatusPending, created.Order.Status)
	require.NotNil(t, created.Order.ShippingAddress)
	assert.Equal(t, "Izmir", created.Order.ShippingAddress.City)

	w = s.do(t, http.MethodGet, "/api/cart", token, nil)
	decodeBody(t, w, &cart)
	assert.Empty(t, cart.Items)

	w = s.do(t, http.MethodGet, "/api/orders/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty cart")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	token, uid := s.register(t, "staff@example.com")
	_, otherUID := s.register(t, "other@example.com")

	w := s.do(t, http.MethodGet, "/api/admin/stats", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.promote(t, uid)

	w = s.do(t, http.MethodGet, "/api/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats models.DashboardStats
	decodeBody(t, w, &stats)
	assert.Equal(t, 2, stats.TotalCustomers)

	w = s.do(t, http.MethodPut, "/api/admin/users/"+otherUID+"/role", token, gin.H{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/users/"+otherUID+"/role", token, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/users/"+uid+"/role", token, gin.H{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminProductLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, uid := s.register(t, "admin@example.com")
	s.promote(t, uid)

	w := s.do(t, http.MethodPost, "/api/admin/products", token, gin.H{
		"name":  "Runner",
		"price": 100,
		"sizes": []string{"40", "41", "42"},
		"stock": map[string]int{"40": 0, "41": 3, "42": 10},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ProductID string `json:"productId"`
	}
	decodeBody(t, w, &created)

	w = s.do(t, http.MethodGet, "/api/admin/stock-alerts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.StockAlertReport
	decodeBody(t, w, &report)
	require.Len(t, report.Alerts, 2)
	assert.Equal(t, models.StockOutOfStock, report.Alerts[0].Status)

	w = s.do(t, http.MethodPut, "/api/admin/products/"+created.ProductID+"/stock", token, gin.H{"size": "40", "quantity": 8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/admin/products/"+created.ProductID, token, gin.H{"name": "Runner X"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/admin/discounts", token, gin.H{
		"productIds": []string{created.ProductID},
		"discount":   20,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/products/"+created.ProductID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Product
	decodeBody(t, w, &p)
	assert.True(t, p.Price.Equal(decimalOf("80")), p.Price.String())
	assert.Equal(t, 8, p.Stock["40"])
	assert.Equal(t, "Runner X", p.Name)
	assert.Equal(t, []string{"40", "41", "42"}, p.Sizes)

	w = s.do(t, http.MethodPost, "/api/admin/discounts", token, gin.H{
		"productIds": []string{created.ProductID},
		"discount":   100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/admin/products/"+created.ProductID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/api/admin/products/"+created.ProductID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func multipartImage(t *testing.T, field, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "up@example.com")

	send := func(contentType string) *httptest.ResponseRecorder {
		body, ct := multipartImage(t, "image", "shoe.png", contentType, []byte("\x89PNG fake"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload/upload-image", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := send("image/png")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		ImageURL string `json:"imageUrl"`
		ImageID  string `json:"imageId"`
	}
	decodeBody(t, w, &resp)
	assert.Contains(t, resp.ImageURL, "http://localhost:5000/uploads/images/")

	img, err := docstore.GetAs[models.Image](context.Background(), s.store, models.CollectionImages, resp.ImageID)
	require.NoError(t, err)
	assert.Equal(t, "shoe.png", img.OriginalName)

	w = send("application/pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(Services{}, Options{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	h.respondError(c, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")

	h = NewHandler(Services{}, Options{ExposeErrors: true})
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	h.respondError(c, errors.New("pq: connection refused"))
	assert.Contains(t, w.Body.String(), "pq: connection refused")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(service.ErrInvalidInput))
	assert.Equal(t, http.StatusNotFound, statusFor(service.ErrNotFound))
	assert.Equal(t, http.StatusForbidden, statusFor(service.ErrForbidden))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrConflict))
	assert.Equal(t, http.StatusUnauthorized, statusFor(identity.ErrInvalidCredentials))
	assert.Equal(t, http.StatusInternalServerError, statusFor(service.ErrDataIntegrity))
}

func TestSyncUserKeepsRegisteredEmail(t *testing.T) {
	s := newTestServer(t)
	token, uid := s.register(t, "owner@example.com")

	w := s.do(t, http.MethodPost, "/api/user/sync", token, gin.H{
		"email":       "someone-else@example.com",
		"displayName": "Renamed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var user models.User
	decodeBody(t, w, &user)
	assert.Equal(t, uid, user.ID)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Renamed", user.DisplayName)
}

func TestAdminNotifications(t *testing.T) {
	s := newTestServer(t)
	token, uid := s.register(t, "admin@example.com")
	s.promote(t, uid)

	require.NoError(t, s.store.Set(context.Background(), models.CollectionNotifications, "order-o1", models.Notification{
		ID:        "order-o1",
		Type:      models.NotificationOrder,
		Title:     "New order",
		CreatedAt: time.Now(),
	}))

	w := s.do(t, http.MethodGet, "/api/admin/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var feed service.NotificationFeed
	decodeBody(t, w, &feed)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, 1, feed.Unread)

	w = s.do(t, http.MethodPut, "/api/admin/notifications/order-o1/read", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, "/api/admin/notifications/nope/read", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/admin/notifications", token, nil)
	decodeBody(t, w, &feed)
	assert.Zero(t, feed.Unread)
}
