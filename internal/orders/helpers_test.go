package orders

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/cart"
	"github.com/angelmondragon/stockengine/internal/products"
	"github.com/angelmondragon/stockengine/internal/stock"
	"github.com/angelmondragon/stockengine/pkg/db"
	"github.com/angelmondragon/stockengine/pkg/db/dbtest"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/types"
)

type fakePayments struct {
	mu        sync.Mutex
	verifyErr error
	refundErr error
	verified  []string
	refunded  []string
}

func (f *fakePayments) VerifyPayment(_ context.Context, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, paymentIntentID)
	return f.verifyErr
}

func (f *fakePayments) RefundPayment(_ context.Context, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, paymentIntentID)
	return f.refundErr
}

type recordingEmitter struct {
	mu      sync.Mutex
	err     error
	changes []StatusChange
}

func (r *recordingEmitter) Emit(_ context.Context, change StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return r.err
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type fixture struct {
	db       *gorm.DB
	svc      *service
	stock    *stock.Manager
	payments *fakePayments
	emitter  *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	manager, err := stock.NewManager(stock.ManagerParams{DB: conn, Logger: logg})
	if err != nil {
		t.Fatalf("stock.NewManager: %v", err)
	}
	payments := &fakePayments{}
	emitter := &recordingEmitter{}
	svc, err := newService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Stock:    manager,
		Catalog:  products.NewRepository(conn),
		Carts:    cart.NewRepository(conn),
		Payments: payments,
		Refunds:  payments,
		Emitter:  emitter,
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("newService: %v", err)
	}
	return &fixture{db: conn, svc: svc, stock: manager, payments: payments, emitter: emitter}
}

func (f *fixture) seedProduct(t *testing.T, stockQty, priceCents int, active bool) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:        fmt.Sprintf("SKU-%s", uuid.NewString()),
		Title:      "Widget",
		PriceCents: priceCents,
		IsActive:   active,
		Stock:      stockQty,
	}
	if err := products.NewRepository(f.db).Create(context.Background(), product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

type cartLine struct {
	product *models.Product
	qty     int
	price   int
}

func (f *fixture) seedCart(t *testing.T, sessionID string, lines ...cartLine) *models.Cart {
	t.Helper()
	c := &models.Cart{SessionID: sessionID}
	for i, line := range lines {
		productID := uuid.New()
		price := line.price
		if line.product != nil {
			productID = line.product.ID
			if price == 0 {
				price = line.product.PriceCents
			}
		}
		c.Items = append(c.Items, models.CartItem{
			ProductID:      productID,
			Quantity:       line.qty,
			UnitPriceCents: price,
			Position:       i,
		})
	}
	repo := cart.NewRepository(f.db)
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("create cart: %v", err)
	}
	loaded, err := repo.FindByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	return loaded
}

func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		Status:          status,
		StatusUpdatedAt: time.Now().UTC(),
		PaymentID:       "pi_" + uuid.NewString(),
		PayWay:          enums.PayWayCard,
		ShippingAddress: testAddress(),
	}
	if err := NewRepository(f.db).Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) reserve(t *testing.T, productID uuid.UUID, sessionID string, qty int) *models.StockReservation {
	t.Helper()
	reservation, err := f.stock.ReserveStock(context.Background(), stock.ReserveInput{
		ProductID: productID,
		Quantity:  qty,
		SessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}
	return reservation
}

func (f *fixture) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	product, err := products.NewRepository(f.db).FindByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

func (f *fixture) storedOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := NewRepository(f.db).FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func testAddress() types.Address {
	return types.Address{
		Name:       "Ada Buyer",
		Line1:      "1 Market St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

func orderInput(c *models.Cart) CreateOrderInput {
	return CreateOrderInput{
		Cart:            c,
		ShippingAddress: testAddress(),
		PaymentIntentID: "pi_" + uuid.NewString(),
		PayWay:          enums.PayWayCard,
	}
}
