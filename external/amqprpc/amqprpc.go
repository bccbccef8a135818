// Package amqprpc implements InventoryService, PaymentService, and
// ShippingService as RPC calls over RabbitMQ, generalizing the teacher's
// fire-and-forget publish/subscribe (infrastructure/messaging/rabbitmq.go)
// into a request/reply pattern: each call publishes a request carrying a
// correlation id and waits for a reply delivered to a private, exclusive
// reply queue, matched by that id.
package amqprpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"orderflow/domain/saga"
	"orderflow/external"
)

const requestExchange = "orderflow.rpc"

// Client is a request/reply RabbitMQ client shared by the three service
// adapters below. One Client owns one connection, one channel, and one
// reply queue; Reserve/Charge/Create calls are safe for concurrent use.
type Client struct {
	url string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	replyQ  string

	pending   map[string]chan amqp091.Delivery
	pendingMu sync.Mutex
}

func NewClient(url string) *Client {
	return &Client{url: url, pending: make(map[string]chan amqp091.Delivery)}
}

// Connect dials RabbitMQ, declares the RPC exchange, and starts consuming
// its own exclusive reply queue.
func (c *Client) Connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqprpc: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqprpc: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(requestExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqprpc: declare exchange: %w", err)
	}

	replyQ, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("amqprpc: declare reply queue: %w", err)
	}

	msgs, err := ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqprpc: consume reply queue: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.replyQ = replyQ.Name

	go c.dispatchReplies(msgs)

	log.Printf("amqprpc: connected, reply queue %s", replyQ.Name)
	return nil
}

func (c *Client) dispatchReplies(msgs <-chan amqp091.Delivery) {
	for msg := range msgs {
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.CorrelationId]
		if ok {
			delete(c.pending, msg.CorrelationId)
		}
		c.pendingMu.Unlock()

		if !ok {
			log.Printf("amqprpc: reply for unknown correlation id %s dropped", msg.CorrelationId)
			continue
		}
		ch <- msg
	}
}

// call publishes a request to routingKey and blocks for the matching reply
// or ctx cancellation. Callers that don't already carry a deadline get
// callTimeout applied so a collaborator that never replies can't hang the
// saga coordinator forever.
func (c *Client) call(ctx context.Context, routingKey string, body []byte) ([]byte, error) {
	if c.channel == nil {
		return nil, fmt.Errorf("amqprpc: not connected")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	correlationID := uuid.NewString()
	replyCh := make(chan amqp091.Delivery, 1)

	c.pendingMu.Lock()
	c.pending[correlationID] = replyCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, correlationID)
		c.pendingMu.Unlock()
	}()

	err := c.channel.PublishWithContext(ctx, requestExchange, routingKey, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       c.replyQ,
		Body:          body,
	})
	if err != nil {
		return nil, &external.TransientError{Op: routingKey, Err: fmt.Errorf("publish request: %w", err)}
	}

	select {
	case msg := <-replyCh:
		return msg.Body, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &external.TransientError{Op: routingKey, Err: ctx.Err()}
		}
		return nil, ctx.Err()
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// rpcError is the wire shape of a failed RPC reply. Code distinguishes a
// retryable collaborator fault ("transient") from a terminal one
// ("permanent"), mirroring external.TransientError/PermanentError across
// the wire.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeReply(op string, body []byte, out any) error {
	var envelope struct {
		Error  *rpcError       `json:"error,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &external.PermanentError{Op: op, Err: fmt.Errorf("decode reply: %w", err)}
	}
	if envelope.Error != nil {
		err := fmt.Errorf("%s", envelope.Error.Message)
		if envelope.Error.Code == "transient" {
			return &external.TransientError{Op: op, Err: err}
		}
		return &external.PermanentError{Op: op, Err: err}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &external.PermanentError{Op: op, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// Inventory is the AMQP-RPC InventoryService.
type Inventory struct{ client *Client }

func NewInventory(client *Client) *Inventory { return &Inventory{client: client} }

func (i *Inventory) Reserve(ctx context.Context, orderID string, items []saga.ReservationItem, idempotencyKey string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"order_id":        orderID,
		"items":           items,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return "", &external.PermanentError{Op: "reserve_inventory", Err: err}
	}
	reply, err := i.client.call(ctx, "reserve_inventory", body)
	if err != nil {
		return "", err
	}
	var result struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := decodeReply("reserve_inventory", reply, &result); err != nil {
		return "", err
	}
	return result.ReservationID, nil
}

func (i *Inventory) Release(ctx context.Context, reservationID string, idempotencyKey string) error {
	body, err := json.Marshal(map[string]any{
		"reservation_id":  reservationID,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return &external.PermanentError{Op: "release_inventory", Err: err}
	}
	reply, err := i.client.call(ctx, "release_inventory", body)
	if err != nil {
		return err
	}
	return decodeReply("release_inventory", reply, nil)
}

// Payment is the AMQP-RPC PaymentService.
type Payment struct{ client *Client }

func NewPayment(client *Client) *Payment { return &Payment{client: client} }

func (p *Payment) Charge(ctx context.Context, orderID string, amountCents int, idempotencyKey string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"order_id":        orderID,
		"amount_cents":    amountCents,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return "", &external.PermanentError{Op: "process_payment", Err: err}
	}
	reply, err := p.client.call(ctx, "process_payment", body)
	if err != nil {
		return "", err
	}
	var result struct {
		PaymentID string `json:"payment_id"`
	}
	if err := decodeReply("process_payment", reply, &result); err != nil {
		return "", err
	}
	return result.PaymentID, nil
}

func (p *Payment) Refund(ctx context.Context, paymentID string, idempotencyKey string) error {
	body, err := json.Marshal(map[string]any{
		"payment_id":      paymentID,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return &external.PermanentError{Op: "refund_payment", Err: err}
	}
	reply, err := p.client.call(ctx, "refund_payment", body)
	if err != nil {
		return err
	}
	return decodeReply("refund_payment", reply, nil)
}

// Shipping is the AMQP-RPC ShippingService.
type Shipping struct{ client *Client }

func NewShipping(client *Client) *Shipping { return &Shipping{client: client} }

func (s *Shipping) Create(ctx context.Context, orderID string, address string, idempotencyKey string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"order_id":        orderID,
		"address":         address,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return "", &external.PermanentError{Op: "create_shipment", Err: err}
	}
	reply, err := s.client.call(ctx, "create_shipment", body)
	if err != nil {
		return "", err
	}
	var result struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := decodeReply("create_shipment", reply, &result); err != nil {
		return "", err
	}
	return result.TrackingNumber, nil
}

var (
	_ external.InventoryService = (*Inventory)(nil)
	_ external.PaymentService   = (*Payment)(nil)
	_ external.ShippingService  = (*Shipping)(nil)
)

// callTimeout is the deadline call applies to a request/reply round trip
// when ctx doesn't already carry one.
const callTimeout = 10 * time.Second
