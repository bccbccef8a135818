// cmd/server is the HTTP entrypoint: a thin net/http wrapper that wires the
// event store, the Order and SagaInstance aggregates, the fulfillment
// saga coordinator, and the projection read models together, then exposes
// exactly the routes spec.md §6 lists. Nearly everything here is plumbing;
// the behavior lives in the packages it imports.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"orderflow/aggregate"
	"orderflow/domain/order"
	domainsaga "orderflow/domain/saga"
	"orderflow/eventstore"
	"orderflow/external"
	"orderflow/external/amqprpc"
	"orderflow/external/mock"
	"orderflow/infrastructure/compensation"
	"orderflow/infrastructure/idempotency"
	"orderflow/internal/config"
	"orderflow/internal/id"
	"orderflow/internal/obslog"
	"orderflow/internal/runner"
	"orderflow/projection"
	"orderflow/saga"
)

var log = obslog.New("cmd.server")

func main() {
	cfg := config.Load()

	store, db, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error("open event store: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	idemStore, pendingStore := idempotency.Store(idempotency.NewMemoryStore()), compensation.Store(compensation.NewMemoryStore())
	if cfg.UsePersistentBackend() {
		pgIdem, err := idempotency.NewPostgresStore(context.Background(), db)
		if err != nil {
			log.Error("idempotency store: %v", err)
			os.Exit(1)
		}
		pgComp, err := compensation.NewPostgresStore(context.Background(), db)
		if err != nil {
			log.Error("compensation store: %v", err)
			os.Exit(1)
		}
		idemStore, pendingStore = pgIdem, pgComp
	}

	inventory, paymentSvc, shipping := wireCollaborators()

	coordinator := saga.NewCoordinator(store, inventory, paymentSvc, shipping, idemStore, pendingStore)
	orderHandler := order.NewHandler(store)

	current := projection.NewCurrentOrders()
	history := projection.NewOrderHistory()
	customers := projection.NewCustomerOrders()
	demand := projection.NewInventoryDemand()
	notifications := projection.NewNotifications(customers, &projection.LogNotifier{})
	processor := projection.NewProcessor(store, current, history, customers, demand, notifications)

	log.Info("replaying event store into projections")
	if err := processor.CatchUp(context.Background()); err != nil {
		log.Error("catch up projections: %v", err)
		os.Exit(1)
	}

	log.Info("recovering in-flight sagas")
	if err := coordinator.RecoverAll(context.Background(), store); err != nil {
		log.Error("recover sagas: %v", err)
		os.Exit(1)
	}

	api := &api{
		store:       store,
		orders:      orderHandler,
		coordinator: coordinator,
		processor:   processor,
		current:     current,
		tracker:     newVersionTracker(),
	}

	worker := compensation.NewWorker(pendingStore, coordinator.RetryCompensation)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.health)
	mux.HandleFunc("POST /orders", api.createOrder)
	mux.HandleFunc("GET /orders", api.listOrders)
	mux.HandleFunc("GET /orders/{id}", api.getOrder)
	mux.HandleFunc("POST /orders/{id}/submit", api.submitOrder)
	mux.HandleFunc("POST /orders/{id}/fulfill", api.fulfillOrder)
	mux.HandleFunc("GET /orders/{id}/events", api.getEvents)
	mux.HandleFunc("GET /orders/{id}/saga", api.getSaga)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	r := runner.New([]runner.Service{
		workerService{worker},
		httpService{httpServer},
	})

	log.Info("listening on %s", httpServer.Addr)
	if err := r.Run(context.Background()); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

// openStore selects the backend per spec.md §6: persistent when
// DATABASE_URL is set, in-memory otherwise. Connection is retried briefly
// to tolerate a database container that is still starting.
func openStore(cfg config.Config) (eventstore.Store, *sql.DB, func(), error) {
	if !cfg.UsePersistentBackend() {
		log.Info("using in-memory event store")
		return eventstore.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)

	var pingErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		log.Info("database not ready (attempt %d/5): %v", attempt, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("ping postgres: %w", pingErr)
	}

	log.Info("using postgres event store")
	pgStore, err := eventstore.NewPostgresStore(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("init postgres store: %w", err)
	}
	return pgStore, db, func() { db.Close() }, nil
}

// wireCollaborators selects the saga's external collaborators. The mock
// package is the default (suitable for the in-memory demo backend and for
// exercising the saga end to end without a live broker); setting
// RABBITMQ_URL switches to the amqprpc request/reply adapters, the same
// toggle shape the teacher uses for RabbitMQ in cmd/main.go.
func wireCollaborators() (external.InventoryService, external.PaymentService, external.ShippingService) {
	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		log.Info("using mock external collaborators")
		return mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	}

	log.Info("connecting to RabbitMQ at %s for external collaborators", rabbitURL)
	client := amqprpc.NewClient(rabbitURL)
	if err := client.Connect(); err != nil {
		log.Error("connect to RabbitMQ: %v, falling back to mock collaborators", err)
		return mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	}
	return amqprpc.NewInventory(client), amqprpc.NewPayment(client), amqprpc.NewShipping(client)
}

type httpService struct{ server *http.Server }

func (s httpService) Name() string { return "http" }

func (s httpService) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server: %v", err)
		}
	}()
	return nil
}

func (s httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type workerService struct{ worker *compensation.Worker }

func (s workerService) Name() string { return "compensation-worker" }

func (s workerService) Start(ctx context.Context) error {
	go s.worker.Start(ctx)
	return nil
}

func (s workerService) Stop(ctx context.Context) error { return nil }

// versionTracker remembers the highest order-aggregate version already
// delivered to the projections, so events produced indirectly by the saga
// coordinator (payment confirmation, completion, cancellation) get fed to
// Processor.DeliverOne exactly once instead of through a repeated CatchUp.
type versionTracker struct {
	seen map[string]int
}

func newVersionTracker() *versionTracker { return &versionTracker{seen: make(map[string]int)} }

func (t *versionTracker) markDelivered(aggID id.AggregateID, version int) {
	t.seen[aggID.String()] = version
}

func (t *versionTracker) lastSeen(aggID id.AggregateID) int {
	return t.seen[aggID.String()]
}

type api struct {
	store       eventstore.Store
	orders      *aggregate.CommandHandler[*order.Order]
	coordinator *saga.Coordinator
	processor   *projection.Processor
	current     *projection.CurrentOrders
	tracker     *versionTracker
}

// deliverSince fetches orderAggID's events past the tracker's last known
// version and feeds each one to the processor, in order.
func (a *api) deliverSince(ctx context.Context, orderAggID id.AggregateID) {
	envs, err := a.store.GetEventsForAggregate(ctx, orderAggID)
	if err != nil {
		log.Error("deliver: load events for %s: %v", orderAggID, err)
		return
	}
	from := a.tracker.lastSeen(orderAggID)
	for _, env := range envs {
		if env.Version <= from {
			continue
		}
		if err := a.processor.DeliverOne(ctx, env); err != nil {
			log.Error("deliver %s v%d: %v", orderAggID, env.Version, err)
			continue
		}
		a.tracker.markDelivered(orderAggID, env.Version)
	}
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createOrderRequest struct {
	CustomerID string `json:"customer_id"`
	Items      []struct {
		ProductID      string `json:"product_id"`
		ProductName    string `json:"product_name"`
		Quantity       int    `json:"quantity"`
		UnitPriceCents int    `json:"unit_price_cents"`
	} `json:"items"`
}

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	orderAggID := id.NewAggregateID()

	o, _, _, err := a.orders.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), req.CustomerID)
	})
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}

	for _, item := range req.Items {
		o, _, _, err = a.orders.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
			return o.AddItem(item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents)
		})
		if err != nil {
			writeError(w, errorToStatus(err), err)
			return
		}
	}

	a.deliverSince(ctx, orderAggID)
	writeJSON(w, http.StatusCreated, map[string]string{"order_id": o.ID(), "state": string(o.State())})
}

func (a *api) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.current.List())
}

func (a *api) getOrder(w http.ResponseWriter, r *http.Request) {
	view, ok := a.current.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("order %s not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) submitOrder(w http.ResponseWriter, r *http.Request) {
	orderAggID, err := id.ParseAggregateID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	o, _, _, err := a.orders.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.SubmitOrder()
	})
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}

	a.deliverSince(ctx, orderAggID)
	view, _ := a.current.Get(o.ID())
	writeJSON(w, http.StatusOK, view)
}

func (a *api) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	orderAggID, err := id.ParseAggregateID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	o, _, err := a.orders.Load(ctx, orderAggID)
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}
	if o.State() != order.StateReserved {
		writeError(w, http.StatusConflict, &order.InvalidStateTransitionError{From: o.State(), Operation: "fulfill"})
		return
	}

	items := make([]domainsaga.ReservationItem, 0, len(o.Items()))
	total := 0
	for _, item := range o.Items() {
		items = append(items, domainsaga.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity})
		total += item.Quantity * item.UnitPriceCents
	}

	sagaAggID, err := a.coordinator.Start(ctx, orderAggID, items, total, "")
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}

	a.deliverSince(ctx, orderAggID)

	status, err := a.coordinator.Status(ctx, sagaAggID)
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saga_id": sagaAggID.String(), "saga_state": status.Phase})
}

func (a *api) getEvents(w http.ResponseWriter, r *http.Request) {
	orderAggID, err := id.ParseAggregateID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	envs, err := a.store.GetEventsForAggregate(r.Context(), orderAggID)
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, envs)
}

func (a *api) getSaga(w http.ResponseWriter, r *http.Request) {
	orderAggID, err := id.ParseAggregateID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	found, err := a.findSagaForOrder(r.Context(), orderAggID)
	if err != nil {
		writeError(w, errorToStatus(err), err)
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no saga for order %s", orderAggID))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// findSagaForOrder scans SagaStarted events for the one whose order_id
// matches, then reports its current status. A production deployment would
// instead maintain a small order_id->saga_id projection; this is cheap
// enough at the scan volumes this demo backend expects.
func (a *api) findSagaForOrder(ctx context.Context, orderAggID id.AggregateID) (*saga.Status, error) {
	started, err := a.store.GetEventsByType(ctx, "SagaStarted")
	if err != nil {
		return nil, err
	}
	for _, env := range started {
		var payload struct {
			OrderID string `json:"order_id"`
		}
		if err := eventstore.FromDocument(env.Payload, &payload); err != nil {
			continue
		}
		if payload.OrderID != orderAggID.String() {
			continue
		}
		status, err := a.coordinator.Status(ctx, env.AggregateID)
		if err != nil {
			return nil, err
		}
		return &status, nil
	}
	return nil, nil
}

// errorToStatus maps a domain/infrastructure error to an HTTP status per
// spec.md §7: concurrency/invalid-state -> 409, validation -> 400,
// not-found -> 404, everything else -> 500.
func errorToStatus(err error) int {
	var concurrency *eventstore.ConcurrencyError
	var invalidState *order.InvalidStateTransitionError
	var invalidPhase *domainsaga.InvalidPhaseTransitionError
	if errors.As(err, &concurrency) || errors.As(err, &invalidState) || errors.As(err, &invalidPhase) {
		return http.StatusConflict
	}

	var notFound *eventstore.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}

	var invalidBatch *eventstore.InvalidBatchError
	var orderEmpty *order.OrderEmptyError
	var invalidQty *order.InvalidQuantityError
	var itemNotFound *order.ItemNotFoundError
	var alreadyExists *order.AlreadyExistsError
	if errors.As(err, &invalidBatch) || errors.As(err, &orderEmpty) || errors.As(err, &invalidQty) ||
		errors.As(err, &itemNotFound) || errors.As(err, &alreadyExists) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
