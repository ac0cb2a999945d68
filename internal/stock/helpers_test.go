package stock

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/pkg/db/dbtest"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db      *gorm.DB
	manager *Manager
	clock   *testClock
}

func newTestEnv(t *testing.T, params ManagerParams) *testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	params.DB = conn
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "stock-test", Output: io.Discard})
	}
	manager, err := NewManager(params)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	manager.now = clock.Now
	return &testEnv{db: conn, manager: manager, clock: clock}
}

func (e *testEnv) seedProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:        fmt.Sprintf("SKU-%s", uuid.NewString()),
		Title:      "Test Product",
		PriceCents: 1000,
		IsActive:   true,
		Stock:      stock,
	}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func (e *testEnv) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := e.db.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

func (e *testEnv) available(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	available, err := e.manager.GetAvailableStock(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetAvailableStock: %v", err)
	}
	return available
}

func (e *testEnv) logs(t *testing.T, productID uuid.UUID) []models.StockLog {
	t.Helper()
	logs, err := e.manager.LogsByProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("LogsByProduct: %v", err)
	}
	return logs
}

func (e *testEnv) reservation(t *testing.T, id uuid.UUID) models.StockReservation {
	t.Helper()
	var reservation models.StockReservation
	if err := e.db.First(&reservation, "id = ?", id).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	return reservation
}

func (e *testEnv) reserve(t *testing.T, productID uuid.UUID, qty int) *models.StockReservation {
	t.Helper()
	reservation, err := e.manager.ReserveStock(context.Background(), ReserveInput{
		ProductID: productID,
		Quantity:  qty,
		SessionID: "session-" + t.Name(),
	})
	if err != nil {
		t.Fatalf("ReserveStock(%d): %v", qty, err)
	}
	return reservation
}
