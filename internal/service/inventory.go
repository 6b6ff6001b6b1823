package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
)

// DefaultLowStockThreshold is the unit count at or below which a size is low.
const DefaultLowStockThreshold = 5

// ClassifyStock buckets a per-size quantity.
func ClassifyStock(quantity, threshold int) string {
	switch {
	case quantity <= 0:
		return models.StockOutOfStock
	case quantity <= threshold:
		return models.StockLow
	default:
		return models.StockSufficient
	}
}

func alertSeverity(status string, quantity int) string {
	if status == models.StockOutOfStock || quantity <= 2 {
		return models.SeverityError
	}
	return models.SeverityWarning
}

// sortedSizes orders size labels numerically when both parse as numbers
// ("39" < "40.5" < "41"), lexically otherwise.
func sortedSizes(stock map[string]int) []string {
	sizes := make([]string, 0, len(stock))
	for size := range stock {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool {
		a, errA := strconv.ParseFloat(sizes[i], 64)
		b, errB := strconv.ParseFloat(sizes[j], 64)
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		return sizes[i] < sizes[j]
	})
	return sizes
}

// BuildStockAlerts scans active products in order and returns one alert per
// low or out-of-stock size, plus the untruncated alert count. limit <= 0
// disables truncation.
func BuildStockAlerts(products []models.Product, threshold, limit int) ([]models.StockAlert, int) {
	alerts := make([]models.StockAlert, 0)
	for i := range products {
		p := &products[i]
		if !p.Active() {
			continue
		}
		for _, size := range sortedSizes(p.Stock) {
			qty := p.Stock[size]
			status := ClassifyStock(qty, threshold)
			if status == models.StockSufficient {
				continue
			}
			alerts = append(alerts, models.StockAlert{
				ProductID: p.ID,
				Name:      p.Name,
				Category:  p.Category,
				Price:     p.Price,
				Size:      size,
				Quantity:  qty,
				Status:    status,
				Severity:  alertSeverity(status, qty),
			})
		}
	}

	total := len(alerts)
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, total
}

// SummarizeStock totals a product's stock map by status.
func SummarizeStock(p *models.Product, threshold int) models.StockSummary {
	sum := models.StockSummary{ProductID: p.ID}
	for _, qty := range p.Stock {
		sum.TotalUnits += qty
		switch ClassifyStock(qty, threshold) {
		case models.StockOutOfStock:
			sum.OutOfStock++
		case models.StockLow:
			sum.Low++
		default:
			sum.Sufficient++
		}
	}
	return sum
}

// StockAlertReport is the dashboard view of stock alerts.
type StockAlertReport struct {
	Alerts []models.StockAlert `json:"alerts"`
	Total  int                 `json:"total"`
}

// InventoryService handles stock alerts and stock mutations
type InventoryService struct {
	store     docstore.Store
	locker    Locker
	events    EventPublisher
	threshold int
	alertCap  int
	now       func() time.Time
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store docstore.Store, locker Locker, events EventPublisher, threshold, alertCap int) *InventoryService {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &InventoryService{
		store:     store,
		locker:    locker,
		events:    events,
		threshold: threshold,
		alertCap:  alertCap,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// StockAlerts rescans every product and returns the capped alert list
func (s *InventoryService) StockAlerts(ctx context.Context) (*StockAlertReport, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.StockAlerts")
	defer span.End()

	products, err := docstore.ListAs[models.Product](ctx, s.store, models.CollectionProducts)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to list products: %w", err))
	}

	alerts, total := BuildStockAlerts(products, s.threshold, s.alertCap)

	all, _ := BuildStockAlerts(products, s.threshold, 0)
	counts := map[string]int{models.StockOutOfStock: 0, models.StockLow: 0}
	for _, a := range all {
		counts[a.Status]++
	}
	for status, n := range counts {
		util.StockAlertsGauge.WithLabelValues(status).Set(float64(n))
	}

	return &StockAlertReport{Alerts: alerts, Total: total}, nil
}

// StockSummary summarizes one product's stock map
func (s *InventoryService) StockSummary(ctx context.Context, productID string) (*models.StockSummary, error) {
	p, err := s.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	sum := SummarizeStock(p, s.threshold)
	return &sum, nil
}

func (s *InventoryService) getProduct(ctx context.Context, productID string) (*models.Product, error) {
	return getProduct(ctx, s.store, productID)
}

// Restock overwrites the quantity of a single size.
func (s *InventoryService) Restock(ctx context.Context, productID, size string, quantity int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Restock")
	defer span.End()

	if size == "" {
		return nil, invalidf("size is required")
	}
	if quantity < 0 {
		return nil, invalidf("quantity must not be negative")
	}

	var updated *models.Product
	err := s.locker.WithLock(ctx, productLockKey(productID), func(ctx context.Context) error {
		p, err := s.getProduct(ctx, productID)
		if err != nil {
			return err
		}

		if p.Stock == nil {
			p.Stock = map[string]int{}
		}
		p.Stock[size] = quantity
		if !containsString(p.Sizes, size) {
			p.Sizes = append(p.Sizes, size)
		}
		now := s.now()
		p.UpdatedAt = &now

		if err := s.store.Update(ctx, models.CollectionProducts, productID, map[string]any{
			"stock":     p.Stock,
			"sizes":     p.Sizes,
			"updatedAt": now,
		}); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	util.RestocksTotal.Inc()
	s.logger.Info("Product restocked",
		zap.String("product_id", productID),
		zap.String("size", size),
		zap.Int("quantity", quantity))

	event := &models.ProductRestockedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeProductRestocked),
		ProductID: productID,
		Size:      size,
		Quantity:  quantity,
	}
	if err := s.events.PublishProductRestocked(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductRestocked event", zap.Error(err))
	}

	return updated, nil
}

// stockLedger records the order lines already taken out of stock so a
// redelivered ORDER_CREATED event is applied at most once per line.
type stockLedger struct {
	OrderID     string     `json:"orderId"`
	Applied     []int      `json:"applied"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (l *stockLedger) has(line int) bool {
	for _, i := range l.Applied {
		if i == line {
			return true
		}
	}
	return false
}

func (s *InventoryService) loadLedger(ctx context.Context, orderID string) (*stockLedger, error) {
	ledger, err := docstore.GetAs[stockLedger](ctx, s.store, models.CollectionStockLedger, orderID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &stockLedger{OrderID: orderID, Applied: []int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock ledger: %w", err)
	}
	return ledger, nil
}

func (s *InventoryService) saveLedger(ctx context.Context, ledger *stockLedger) error {
	if err := s.store.Set(ctx, models.CollectionStockLedger, ledger.OrderID, ledger); err != nil {
		return fmt.Errorf("failed to save stock ledger: %w", err)
	}
	return nil
}

// DecrementForOrder subtracts ordered quantities from per-size stock, clamping
// at zero. Items without a size are skipped. Each applied line is recorded in
// the stock ledger; lines already recorded are not applied again, so a failed
// event can be retried and a duplicate delivery is a no-op.
func (s *InventoryService) DecrementForOrder(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.DecrementForOrder")
	defer span.End()

	if event.OrderID == "" {
		return invalidf("order id is required")
	}

	err := s.locker.WithLock(ctx, orderStockLockKey(event.OrderID), func(ctx context.Context) error {
		ledger, err := s.loadLedger(ctx, event.OrderID)
		if err != nil {
			return err
		}
		if ledger.CompletedAt != nil {
			s.logger.Info("Order stock already applied, skipping",
				zap.String("order_id", event.OrderID))
			util.StockDecrementsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}

		for i, item := range event.Items {
			if ledger.has(i) {
				continue
			}
			if item.Size == "" || item.Quantity <= 0 {
				util.StockDecrementsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			if err := s.decrementOne(ctx, item); err != nil {
				if !errors.Is(err, ErrNotFound) {
					return fmt.Errorf("order %s line %d: %w", event.OrderID, i, err)
				}
				s.logger.Warn("Ordered product no longer exists",
					zap.String("order_id", event.OrderID),
					zap.String("product_id", item.ProductID))
				util.StockDecrementsTotal.WithLabelValues("missing_product").Inc()
				continue
			}
			ledger.Applied = append(ledger.Applied, i)
			if err := s.saveLedger(ctx, ledger); err != nil {
				return err
			}
		}

		now := s.now()
		ledger.CompletedAt = &now
		return s.saveLedger(ctx, ledger)
	})
	return util.RecordError(span, err)
}

func (s *InventoryService) decrementOne(ctx context.Context, item models.OrderItemData) error {
	var before, after int
	err := s.locker.WithLock(ctx, productLockKey(item.ProductID), func(ctx context.Context) error {
		p, err := s.getProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if p.Stock == nil {
			p.Stock = map[string]int{}
		}

		before = p.Stock[item.Size]
		after = before - item.Quantity
		if after < 0 {
			s.logger.Warn("Order exceeds available stock, clamping to zero",
				zap.String("product_id", item.ProductID),
				zap.String("size", item.Size),
				zap.Int("available", before),
				zap.Int("ordered", item.Quantity))
			after = 0
		}
		p.Stock[item.Size] = after

		return s.store.Update(ctx, models.CollectionProducts, item.ProductID, map[string]any{
			"stock":     p.Stock,
			"updatedAt": s.now(),
		})
	})
	if err != nil {
		return err
	}
	util.StockDecrementsTotal.WithLabelValues("applied").Inc()

	prev := ClassifyStock(before, s.threshold)
	next := ClassifyStock(after, s.threshold)
	if next != models.StockSufficient && next != prev {
		event := &models.StockLevelEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeStockLevelChanged),
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  after,
			Status:    next,
		}
		if err := s.events.PublishStockLevelChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish StockLevelChanged event", zap.Error(err))
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
