package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	attemptrepo "storefront/internal/repository/attempt"
	orderrepo "storefront/internal/repository/order"
	"storefront/internal/service/payment"
)

type fakeInventory struct {
	mu       sync.Mutex
	stock    map[string]int
	sold     map[string]int
	releases int
	// reserveHook, when set, runs at the top of every Reserve call.
	reserveHook func()
}

func newFakeInventory(stock map[string]int) *fakeInventory {
	return &fakeInventory{stock: stock, sold: map[string]int{}}
}

func (f *fakeInventory) Reserve(_ context.Context, productID string, quantity int) error {
	if f.reserveHook != nil {
		f.reserveHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	available, ok := f.stock[productID]
	if !ok {
		return domain.ErrNotFound
	}
	if available < quantity {
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	f.stock[productID] = available - quantity
	f.sold[productID] += quantity
	return nil
}

func (f *fakeInventory) Release(_ context.Context, productID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID] += quantity
	f.sold[productID] -= quantity
	f.releases++
	return nil
}

func (f *fakeInventory) stockOf(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID]
}

type fakeCarts struct {
	mu       sync.Mutex
	items    map[string][]domain.CartItem
	failures int // DeleteByIDs errors to inject before succeeding
}

func (f *fakeCarts) ListByUser(_ context.Context, userID string) ([]domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartItem(nil), f.items[userID]...), nil
}

func (f *fakeCarts) DeleteByIDs(_ context.Context, userID string, itemIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("cart store unavailable")
	}
	drop := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}
	var kept []domain.CartItem
	deleted := 0
	for _, item := range f.items[userID] {
		if drop[item.ID] {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	f.items[userID] = kept
	return deleted, nil
}

func (f *fakeCarts) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[userID])
}

type fakeOrders struct {
	mu        sync.Mutex
	byKey     map[string]*domain.Order
	createErr error
	// getMisses makes GetByIdempotencyKey report not-found this many times
	// even when the order exists, to simulate a racing writer.
	getMisses int
	seq       int
	created   []orderrepo.CreateInput
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byKey: map[string]*domain.Order{}}
}

func (f *fakeOrders) CreateWithItems(_ context.Context, in orderrepo.CreateInput) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byKey[in.IdempotencyKey]; ok {
		return nil, domain.ErrConflict
	}
	f.seq++
	ord := &domain.Order{
		ID:              fmt.Sprintf("order-%d", f.seq),
		UserID:          in.UserID,
		TotalCents:      in.TotalCents,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   in.PaymentStatus,
		OrderStatus:     domain.OrderPending,
		ShippingAddress: in.ShippingAddress,
		Phone:           in.Phone,
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       time.Now().UTC(),
	}
	f.byKey[in.IdempotencyKey] = ord
	f.created = append(f.created, in)
	return ord, nil
}

func (f *fakeOrders) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getMisses > 0 {
		f.getMisses--
		return nil, domain.ErrNotFound
	}
	ord, ok := f.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ord, nil
}

type fakeAttempts struct {
	mu           sync.Mutex
	states       map[string]string
	updatedAt    map[string]time.Time
	users        map[string]string
	reservations map[string][]attemptrepo.Reservation
	addResErr    error
	// reservationsGate, when set, runs after each Reservations read. Tests
	// use it to hold concurrent placements at the read-before-record point.
	reservationsGate func()
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{
		states:       map[string]string{},
		updatedAt:    map[string]time.Time{},
		users:        map[string]string{},
		reservations: map[string][]attemptrepo.Reservation{},
	}
}

func (f *fakeAttempts) Begin(_ context.Context, key, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[key]; ok {
		return nil
	}
	f.states[key] = attemptrepo.StateStarted
	f.users[key] = userID
	f.updatedAt[key] = time.Now()
	return nil
}

func (f *fakeAttempts) SetState(_ context.Context, key, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[key] = state
	f.updatedAt[key] = time.Now()
	return nil
}

func (f *fakeAttempts) AddReservation(_ context.Context, key, productID string, quantity int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addResErr != nil {
		return false, f.addResErr
	}
	for _, res := range f.reservations[key] {
		if res.ProductID == productID {
			return false, nil
		}
	}
	f.reservations[key] = append(f.reservations[key], attemptrepo.Reservation{ProductID: productID, Quantity: quantity})
	return true, nil
}

func (f *fakeAttempts) Reservations(_ context.Context, key string) ([]attemptrepo.Reservation, error) {
	f.mu.Lock()
	recorded := append([]attemptrepo.Reservation(nil), f.reservations[key]...)
	gate := f.reservationsGate
	f.mu.Unlock()
	if gate != nil {
		gate()
	}
	return recorded, nil
}

func (f *fakeAttempts) MarkReleased(_ context.Context, key, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, res := range f.reservations[key] {
		if res.ProductID == productID {
			f.reservations[key][i].Released = true
		}
	}
	return nil
}

func (f *fakeAttempts) StaleReserved(_ context.Context, olderThan time.Duration) ([]attemptrepo.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var result []attemptrepo.Attempt
	for key, state := range f.states {
		if state == attemptrepo.StateReserved && f.updatedAt[key].Before(cutoff) {
			result = append(result, attemptrepo.Attempt{IdempotencyKey: key, UserID: f.users[key], State: state})
		}
	}
	return result, nil
}

func (f *fakeAttempts) state(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[key]
}

type fakeProfiles struct {
	mu      sync.Mutex
	profile domain.Profile
	updates int
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profile
	p.ID = id
	return &p, nil
}

func (f *fakeProfiles) UpdateContact(_ context.Context, _, phone, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile.Phone = phone
	f.profile.Address = address
	f.updates++
	return nil
}

// fakeGateway replays scripted outcomes, repeating the last one. An empty
// script means every call errors like a dropped connection.
type fakeGateway struct {
	mu     sync.Mutex
	script []payment.Outcome
	calls  int
}

func (f *fakeGateway) Authorize(_ context.Context, _ int64, _, _ string) (payment.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.script) == 0 {
		return "", errors.New("connection reset")
	}
	outcome := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return outcome, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProducer struct {
	mu     sync.Mutex
	events []events.OrderPlaced
}

func (f *fakeProducer) PublishOrderPlaced(_ context.Context, ev events.OrderPlaced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	svc       *Service
	inventory *fakeInventory
	carts     *fakeCarts
	orders    *fakeOrders
	attempts  *fakeAttempts
	profiles  *fakeProfiles
	gateway   *fakeGateway
	producer  *fakeProducer
}

func newFixture(stock map[string]int) *fixture {
	f := &fixture{
		inventory: newFakeInventory(stock),
		carts:     &fakeCarts{items: map[string][]domain.CartItem{}},
		orders:    newFakeOrders(),
		attempts:  newFakeAttempts(),
		profiles:  &fakeProfiles{},
		gateway:   &fakeGateway{script: []payment.Outcome{payment.OutcomeApproved}},
		producer:  &fakeProducer{},
	}
	f.svc = New(Deps{
		Carts:    f.carts,
		Products: f.inventory,
		Orders:   f.orders,
		Attempts: f.attempts,
		Profiles: f.profiles,
		Gateway:  f.gateway,
		Auth:     NewAuthCache(nil),
		Producer: f.producer,
	}, time.Second, nil)
	return f
}

func snapshotOf(userID string, lines ...domain.SnapshotLine) domain.CartSnapshot {
	return domain.CartSnapshot{UserID: userID, Lines: lines, CapturedAt: time.Now().UTC()}
}

func placeInput(userID, key string, snap domain.CartSnapshot) PlaceOrderInput {
	return PlaceOrderInput{
		UserID:          userID,
		Snapshot:        snap,
		ShippingAddress: "1 Main St",
		Phone:           "555-0100",
		PaymentMethod:   domain.PaymentPhonePe,
		IdempotencyKey:  key,
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(map[string]int{"p1": 10, "p2": 4})
	defer f.svc.Close()

	f.carts.items["u1"] = []domain.CartItem{
		{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 2},
		{ID: "c2", UserID: "u1", ProductID: "p2", Quantity: 1},
	}

	snap := snapshotOf("u1",
		domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 1000},
		domain.SnapshotLine{CartItemID: "c2", ProductID: "p2", Quantity: 1, PriceCents: 500},
	)

	ord, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-1", snap))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if ord.TotalCents != 2500 {
		t.Fatalf("expected total 2500, got %d", ord.TotalCents)
	}
	if ord.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected paid, got %s", ord.PaymentStatus)
	}
	if got := f.inventory.stockOf("p1"); got != 8 {
		t.Fatalf("expected p1 stock 8, got %d", got)
	}
	if got := f.inventory.stockOf("p2"); got != 3 {
		t.Fatalf("expected p2 stock 3, got %d", got)
	}
	if f.attempts.state("key-1") != attemptrepo.StateCompleted {
		t.Fatalf("expected completed attempt, got %s", f.attempts.state("key-1"))
	}
	if f.carts.count("u1") != 0 {
		t.Fatalf("expected cleared cart, %d items left", f.carts.count("u1"))
	}
	if len(f.producer.events) != 1 || f.producer.events[0].OrderID != ord.ID {
		t.Fatalf("expected one order.placed event for %s, got %+v", ord.ID, f.producer.events)
	}
	if f.profiles.profile.Address != "1 Main St" {
		t.Fatalf("expected profile address synced, got %q", f.profiles.profile.Address)
	}
}

func TestPlaceOrder_ValidationFailures(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	line := domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100}

	_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "k", snapshotOf("u1")))
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	bad := placeInput("u1", "k", snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 0, PriceCents: 100}))
	if _, err := f.svc.PlaceOrder(context.Background(), bad); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity error, got %v", err)
	}

	in := placeInput("u1", "k", snapshotOf("u1", line))
	in.PaymentMethod = "barter"
	if _, err := f.svc.PlaceOrder(context.Background(), in); !errors.Is(err, domain.ErrUnsupportedPayment) {
		t.Fatalf("expected unsupported payment error, got %v", err)
	}

	in = placeInput("u1", "k", snapshotOf("u1", line))
	in.ShippingAddress = "  "
	var verr *domain.ValidationError
	if _, err := f.svc.PlaceOrder(context.Background(), in); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if f.gateway.callCount() != 0 {
		t.Fatalf("gateway must not be called on validation failure, got %d calls", f.gateway.callCount())
	}
	if got := f.inventory.stockOf("p1"); got != 5 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
}

func TestPlaceOrder_DeclinedAbortsBeforeInventory(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()
	f.gateway.script = []payment.Outcome{payment.OutcomeDeclined}

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100})
	_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-d", snap))
	if !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected declined, got %v", err)
	}
	if got := f.inventory.stockOf("p1"); got != 5 {
		t.Fatalf("declined payment must not touch stock, got %d", got)
	}
	if len(f.orders.created) != 0 {
		t.Fatalf("declined payment must not create an order")
	}
}

func TestPlaceOrder_IndeterminateThenRetrySameKey(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()
	// First call drops the connection, the retry settles approved.
	f.gateway.script = nil

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})
	in := placeInput("u1", "key-i", snap)

	_, err := f.svc.PlaceOrder(context.Background(), in)
	if !errors.Is(err, domain.ErrPaymentIndeterminate) {
		t.Fatalf("expected indeterminate, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("indeterminate must be retryable")
	}
	if got := f.inventory.stockOf("p1"); got != 5 {
		t.Fatalf("indeterminate payment must not touch stock, got %d", got)
	}

	f.gateway.mu.Lock()
	f.gateway.script = []payment.Outcome{payment.OutcomeApproved}
	f.gateway.mu.Unlock()

	ord, err := f.svc.PlaceOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ord == nil || f.inventory.stockOf("p1") != 4 {
		t.Fatalf("retry must place the order exactly once, stock=%d", f.inventory.stockOf("p1"))
	}
}

func TestPlaceOrder_IdempotentRetryReturnsExisting(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100})
	in := placeInput("u1", "key-r", snap)

	first, err := f.svc.PlaceOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("first place: %v", err)
	}
	second, err := f.svc.PlaceOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("second place: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("retry must return the same order, got %s and %s", first.ID, second.ID)
	}
	if got := f.inventory.stockOf("p1"); got != 3 {
		t.Fatalf("stock must be decremented once, got %d", got)
	}
	if f.gateway.callCount() != 1 {
		t.Fatalf("retry after completion must not re-authorize, got %d calls", f.gateway.callCount())
	}
}

func TestPlaceOrder_InsufficientStockCompensates(t *testing.T) {
	f := newFixture(map[string]int{"p1": 10, "p2": 1})
	defer f.svc.Close()

	snap := snapshotOf("u1",
		domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100},
		domain.SnapshotLine{CartItemID: "c2", ProductID: "p2", Quantity: 3, PriceCents: 100},
	)
	_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-s", snap))

	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if insufficient.ProductID != "p2" || insufficient.Requested != 3 || insufficient.Available != 1 {
		t.Fatalf("unexpected detail: %+v", insufficient)
	}
	// p1 was reserved before p2 failed and must be back.
	if got := f.inventory.stockOf("p1"); got != 10 {
		t.Fatalf("expected p1 restored to 10, got %d", got)
	}
	if f.attempts.state("key-s") != attemptrepo.StateCompensated {
		t.Fatalf("expected compensated attempt, got %s", f.attempts.state("key-s"))
	}
	if len(f.orders.created) != 0 {
		t.Fatalf("failed reservation must not create an order")
	}
}

func TestPlaceOrder_MaterializeFailureCompensates(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()
	f.orders.createErr = errors.New("db down")

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100})
	_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-m", snap))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("persistence failure must be retryable")
	}
	if got := f.inventory.stockOf("p1"); got != 5 {
		t.Fatalf("expected stock restored, got %d", got)
	}
	if f.attempts.state("key-m") != attemptrepo.StateCompensated {
		t.Fatalf("expected compensated attempt, got %s", f.attempts.state("key-m"))
	}
}

func TestPlaceOrder_ConcurrentDuplicateCommit(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})

	// Seed the committed order of a racing retry, but let the fast-path
	// lookup miss so this attempt reaches the unique-key conflict.
	existing, err := f.orders.CreateWithItems(context.Background(), orderrepo.CreateInput{
		UserID: "u1", TotalCents: 100, PaymentMethod: domain.PaymentPhonePe,
		PaymentStatus: domain.PaymentPaid, IdempotencyKey: "key-c",
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	f.orders.getMisses = 1

	ord, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-c", snap))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if ord.ID != existing.ID {
		t.Fatalf("expected the committed order %s, got %s", existing.ID, ord.ID)
	}
	// The racing writer owns the decrement; this attempt's own one must be
	// the only one applied.
	if got := f.inventory.stockOf("p1"); got != 4 {
		t.Fatalf("expected single decrement, stock=%d", got)
	}
}

func TestPlaceOrder_ConcurrentSameKeyDecrementsOnce(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	// Hold both placements after the recorded-reservations read, so each
	// sees an empty set and applies the conditional decrement before either
	// records its own line.
	var gate sync.WaitGroup
	gate.Add(2)
	f.attempts.reservationsGate = func() {
		gate.Done()
		gate.Wait()
	}

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100})
	in := placeInput("u1", "key-dup", snap)
	in.PaymentMethod = domain.PaymentCOD

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []string
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ord, err := f.svc.PlaceOrder(context.Background(), in)
			if err != nil {
				t.Errorf("place order: %v", err)
				return
			}
			mu.Lock()
			ids = append(ids, ord.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("both placements must return the committed order, got %v", ids)
	}
	if len(f.orders.created) != 1 {
		t.Fatalf("expected a single order, got %d", len(f.orders.created))
	}
	// One of the two decrements lost the record-insert race and must have
	// been given back.
	if got := f.inventory.stockOf("p1"); got != 3 {
		t.Fatalf("same-key race must decrement exactly once, want stock 3, got %d", got)
	}
}

func TestPlaceOrder_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(map[string]int{"p1": 3})
	defer f.svc.Close()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		stockErrs int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: fmt.Sprintf("c%d", i), ProductID: "p1", Quantity: 1, PriceCents: 100})
			_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", fmt.Sprintf("key-%d", i), snap))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var insufficient *domain.InsufficientStockError
				if errors.As(err, &insufficient) {
					stockErrs++
				} else {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 placements, got %d", succeeded)
	}
	if stockErrs != attempts-3 {
		t.Fatalf("expected %d stock rejections, got %d", attempts-3, stockErrs)
	}
	if got := f.inventory.stockOf("p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestPlaceOrder_FreezesSnapshotPrices(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 750})

	ord, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-p", snap))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if ord.TotalCents != 1500 {
		t.Fatalf("expected snapshot-priced total 1500, got %d", ord.TotalCents)
	}
	if len(f.orders.created) != 1 || f.orders.created[0].Items[0].PriceCents != 750 {
		t.Fatalf("expected frozen line price 750, got %+v", f.orders.created)
	}
}

func TestPlaceOrder_CODSkipsGateway(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})
	in := placeInput("u1", "key-cod", snap)
	in.PaymentMethod = domain.PaymentCOD

	ord, err := f.svc.PlaceOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if ord.PaymentStatus != domain.PaymentPending {
		t.Fatalf("cod order must stay pending, got %s", ord.PaymentStatus)
	}
	if f.gateway.callCount() != 0 {
		t.Fatalf("cod must not authorize, got %d calls", f.gateway.callCount())
	}
}

func TestPlaceOrder_CartClearFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})

	f.carts.items["u1"] = []domain.CartItem{{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 1}}
	f.carts.failures = 1

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})
	ord, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-cc", snap))
	if err != nil {
		t.Fatalf("cart clear failure must not fail placement: %v", err)
	}
	if ord == nil {
		t.Fatal("expected an order")
	}

	// Close drains the retry queue; the queued clear succeeds on its first
	// background attempt.
	f.svc.Close()
	if f.carts.count("u1") != 0 {
		t.Fatalf("expected background retry to clear the cart, %d left", f.carts.count("u1"))
	}
}

func TestPlaceOrder_CancellationAfterInventoryStillMaterializes(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})

	f.carts.items["u1"] = []domain.CartItem{{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 1}}

	// The caller goes away just as the first row is about to be touched.
	ctx, cancel := context.WithCancel(context.Background())
	f.inventory.reserveHook = cancel

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})
	in := placeInput("u1", "key-gone", snap)
	in.PaymentMethod = domain.PaymentCOD

	ord, err := f.svc.PlaceOrder(ctx, in)
	if err != nil {
		t.Fatalf("cancellation after reservation must not abort: %v", err)
	}
	if got := f.inventory.stockOf("p1"); got != 4 {
		t.Fatalf("expected the reservation applied, stock=%d", got)
	}
	if f.attempts.state("key-gone") != attemptrepo.StateCompleted {
		t.Fatalf("expected completed attempt, got %s", f.attempts.state("key-gone"))
	}
	if len(f.producer.events) != 1 || f.producer.events[0].OrderID != ord.ID {
		t.Fatalf("expected one order.placed event for %s, got %+v", ord.ID, f.producer.events)
	}

	// The cart clear was only queued and the profile sync skipped entirely.
	f.svc.Close()
	if f.carts.count("u1") != 0 {
		t.Fatalf("expected queued clear to run on drain, %d left", f.carts.count("u1"))
	}
	if f.profiles.updates != 0 {
		t.Fatalf("profile sync must be suppressed on cancellation, got %d updates", f.profiles.updates)
	}
}

func TestPlaceOrder_KeepsItemsAddedAfterSnapshot(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5, "p2": 5})
	defer f.svc.Close()

	f.carts.items["u1"] = []domain.CartItem{{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 1}}
	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 1, PriceCents: 100})

	// Item lands in the cart between snapshot and placement.
	f.carts.mu.Lock()
	f.carts.items["u1"] = append(f.carts.items["u1"], domain.CartItem{ID: "c2", UserID: "u1", ProductID: "p2", Quantity: 1})
	f.carts.mu.Unlock()

	if _, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-a", snap)); err != nil {
		t.Fatalf("place order: %v", err)
	}
	f.carts.mu.Lock()
	defer f.carts.mu.Unlock()
	if len(f.carts.items["u1"]) != 1 || f.carts.items["u1"][0].ID != "c2" {
		t.Fatalf("expected only the later item to survive, got %+v", f.carts.items["u1"])
	}
}

func TestPlaceOrder_ReservationRecordFailureReleases(t *testing.T) {
	f := newFixture(map[string]int{"p1": 5})
	defer f.svc.Close()
	f.attempts.addResErr = errors.New("attempt store down")

	snap := snapshotOf("u1", domain.SnapshotLine{CartItemID: "c1", ProductID: "p1", Quantity: 2, PriceCents: 100})
	_, err := f.svc.PlaceOrder(context.Background(), placeInput("u1", "key-rec", snap))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if got := f.inventory.stockOf("p1"); got != 5 {
		t.Fatalf("unrecorded decrement must be released, stock=%d", got)
	}
}

func TestRecover(t *testing.T) {
	f := newFixture(map[string]int{"p1": 3})
	defer f.svc.Close()

	// Attempt that reserved and crashed before creating an order.
	if err := f.inventory.Reserve(context.Background(), "p1", 2); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
	f.attempts.states["key-leak"] = attemptrepo.StateReserved
	f.attempts.users["key-leak"] = "u1"
	f.attempts.updatedAt["key-leak"] = time.Now().Add(-time.Hour)
	f.attempts.reservations["key-leak"] = []attemptrepo.Reservation{{ProductID: "p1", Quantity: 2}}

	// Attempt that crashed after the order became durable.
	if _, err := f.orders.CreateWithItems(context.Background(), orderrepo.CreateInput{
		UserID: "u2", TotalCents: 100, PaymentMethod: domain.PaymentCOD,
		PaymentStatus: domain.PaymentPending, IdempotencyKey: "key-done",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	f.attempts.states["key-done"] = attemptrepo.StateReserved
	f.attempts.users["key-done"] = "u2"
	f.attempts.updatedAt["key-done"] = time.Now().Add(-time.Hour)
	f.attempts.reservations["key-done"] = []attemptrepo.Reservation{{ProductID: "p1", Quantity: 1}}

	if err := f.svc.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if f.attempts.state("key-leak") != attemptrepo.StateCompensated {
		t.Fatalf("expected leaked attempt compensated, got %s", f.attempts.state("key-leak"))
	}
	if got := f.inventory.stockOf("p1"); got != 3 {
		t.Fatalf("expected leaked stock restored, got %d", got)
	}
	if f.attempts.state("key-done") != attemptrepo.StateCompleted {
		t.Fatalf("expected durable attempt completed, got %s", f.attempts.state("key-done"))
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(map[string]int{})
	defer f.svc.Close()

	f.carts.items["u1"] = []domain.CartItem{
		{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 2, Product: &domain.Product{ID: "p1", PriceCents: 300}},
		{ID: "c2", UserID: "u1", ProductID: "p2", Quantity: 1, Product: nil}, // dangling row
	}

	snap, err := f.svc.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 1 {
		t.Fatalf("expected dangling rows skipped, got %d lines", len(snap.Lines))
	}
	if snap.Lines[0].PriceCents != 300 || snap.TotalCents() != 600 {
		t.Fatalf("unexpected snapshot pricing: %+v", snap.Lines[0])
	}
}
