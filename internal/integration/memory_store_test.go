package integration

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memoryStore is an in-memory stand-in for the order and product tables.
// ApplyPayment holds the lock for the whole transition, like the row lock
// taken by the PostgreSQL repository.
type memoryStore struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	products map[string]*domain.Product
	payments []string // order ids with a recorded payment
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:   make(map[string]*domain.Order),
		products: make(map[string]*domain.Product),
	}
}

func (s *memoryStore) addProduct(p *domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *memoryStore) product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

func (s *memoryStore) paymentCount(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.payments {
		if id == orderID {
			n++
		}
	}
	return n
}

// --- ports.ProductRepository ---

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// --- ports.OrderRepository ---

func (s *memoryStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *memoryStore) FindByReference(_ context.Context, trxRef string) (*domain.Order, error) {
	if _, err := uuid.Parse(trxRef); err != nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[trxRef]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *memoryStore) FindPendingByCustomer(_ context.Context, productID, email string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Order
	for _, o := range s.orders {
		if o.ProductID != productID || !strings.EqualFold(o.CustomerEmail, email) {
			continue
		}
		if !o.IsPending() || o.PaymentURL == nil {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *memoryStore) SetPaymentURL(_ context.Context, orderID, paymentURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.PaymentURL = &paymentURL
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memoryStore) SetStatus(_ context.Context, orderID string, status domain.PaymentStatus, providerTxID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	if o.IsCompleted() {
		return domain.ErrOrderNotMutable
	}
	o.PaymentStatus = status
	if providerTxID != nil {
		o.ProviderTransactionID = providerTxID
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) ApplyPayment(_ context.Context, orderID, providerTxID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.IsCompleted() {
		return domain.ErrPaymentAlreadyApplied
	}

	now := time.Now().UTC()
	o.PaymentStatus = domain.PaymentStatusCompleted
	o.ProviderTransactionID = &providerTxID
	o.PaidAt = &now
	o.UpdatedAt = now

	if p, ok := s.products[o.ProductID]; ok {
		p.SalesCount++
		p.Revenue = p.Revenue.Add(amount)
	}
	s.payments = append(s.payments, orderID)
	return nil
}

// memoryAuditRepo implements ports.AuditRepository.
type memoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *memoryAuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *log)
	return nil
}

func (r *memoryAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
