// Package mock provides in-memory InventoryService/PaymentService/
// ShippingService implementations for tests and cmd/server's default
// wiring, grounded on the teacher's MockPriceService/MockTradeWorker: a
// struct with no collaborators that simulates a small delay and returns a
// deterministic result, with behavior overridable per call for test setup.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orderflow/domain/saga"
	"orderflow/external"
)

// Inventory is a controllable InventoryService. FailReserve, when non-nil,
// is returned (wrapped as configured) instead of succeeding; it is checked
// on every call whose idempotency key has no cached success yet, so retries
// of the same key after a transient failure can be made to succeed on a
// later call by clearing it.
type Inventory struct {
	mu sync.Mutex

	Delay         time.Duration
	FailReserve   error
	FailTransient bool

	// FailReleaseTimes makes the first N Release calls (across all keys)
	// return a transient error before succeeding, simulating an outage the
	// compensation worker must retry past.
	FailReleaseTimes int

	reserved     map[string]string // idempotency key -> reservation id
	releasedKeys map[string]bool
	releaseCount int
	ReserveCalls []string
	ReleaseCalls []string
}

func NewInventory() *Inventory {
	return &Inventory{
		Delay:        10 * time.Millisecond,
		reserved:     make(map[string]string),
		releasedKeys: make(map[string]bool),
	}
}

func (m *Inventory) Reserve(ctx context.Context, orderID string, items []saga.ReservationItem, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReserveCalls = append(m.ReserveCalls, idempotencyKey)
	if id, ok := m.reserved[idempotencyKey]; ok {
		return id, nil
	}

	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if m.FailReserve != nil {
		if m.FailTransient {
			return "", &external.TransientError{Op: "reserve_inventory", Err: m.FailReserve}
		}
		return "", &external.PermanentError{Op: "reserve_inventory", Err: m.FailReserve}
	}

	reservationID := fmt.Sprintf("res-%s", idempotencyKey)
	m.reserved[idempotencyKey] = reservationID
	return reservationID, nil
}

func (m *Inventory) Release(ctx context.Context, reservationID string, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls = append(m.ReleaseCalls, idempotencyKey)
	if m.releasedKeys[idempotencyKey] {
		return nil
	}

	m.releaseCount++
	if m.releaseCount <= m.FailReleaseTimes {
		return &external.TransientError{Op: "release_inventory", Err: fmt.Errorf("simulated outage")}
	}

	m.releasedKeys[idempotencyKey] = true
	return nil
}

// Payment is a controllable PaymentService.
type Payment struct {
	mu            sync.Mutex
	Delay         time.Duration
	FailCharge    error
	FailTransient bool
	charged       map[string]string
	ChargeCalls   []string
	RefundCalls   []string
}

func NewPayment() *Payment {
	return &Payment{
		Delay:   10 * time.Millisecond,
		charged: make(map[string]string),
	}
}

func (m *Payment) Charge(ctx context.Context, orderID string, amountCents int, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ChargeCalls = append(m.ChargeCalls, idempotencyKey)
	if id, ok := m.charged[idempotencyKey]; ok {
		return id, nil
	}

	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if m.FailCharge != nil {
		if m.FailTransient {
			return "", &external.TransientError{Op: "process_payment", Err: m.FailCharge}
		}
		return "", &external.PermanentError{Op: "process_payment", Err: m.FailCharge}
	}

	paymentID := fmt.Sprintf("pay-%s", idempotencyKey)
	m.charged[idempotencyKey] = paymentID
	return paymentID, nil
}

func (m *Payment) Refund(ctx context.Context, paymentID string, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls = append(m.RefundCalls, idempotencyKey)
	return nil
}

// Shipping is a controllable ShippingService.
type Shipping struct {
	mu            sync.Mutex
	Delay         time.Duration
	FailCreate    error
	FailTransient bool
	created       map[string]string
	CreateCalls   []string
}

func NewShipping() *Shipping {
	return &Shipping{
		Delay:   10 * time.Millisecond,
		created: make(map[string]string),
	}
}

func (m *Shipping) Create(ctx context.Context, orderID string, address string, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, idempotencyKey)
	if tracking, ok := m.created[idempotencyKey]; ok {
		return tracking, nil
	}

	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if m.FailCreate != nil {
		if m.FailTransient {
			return "", &external.TransientError{Op: "create_shipment", Err: m.FailCreate}
		}
		return "", &external.PermanentError{Op: "create_shipment", Err: m.FailCreate}
	}

	trackingNumber := fmt.Sprintf("track-%s", idempotencyKey)
	m.created[idempotencyKey] = trackingNumber
	return trackingNumber, nil
}

var (
	_ external.InventoryService = (*Inventory)(nil)
	_ external.PaymentService   = (*Payment)(nil)
	_ external.ShippingService  = (*Shipping)(nil)
)
