// Package checkout coordinates order placement: payment authorization,
// inventory reservation, order materialization, and the best-effort cleanup
// steps, as a compensating saga over single-row conditional updates.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	attemptrepo "storefront/internal/repository/attempt"
	orderrepo "storefront/internal/repository/order"
	"storefront/internal/service/payment"
)

const (
	compensationRetries = 3
	compensationBackoff = 200 * time.Millisecond
	staleAttemptAge     = 10 * time.Minute
)

type inventoryRepo interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

type cartRepo interface {
	ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error)
	DeleteByIDs(ctx context.Context, userID string, itemIDs []string) (int, error)
}

type orderRepoIface interface {
	CreateWithItems(ctx context.Context, in orderrepo.CreateInput) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}

type attemptRepoIface interface {
	Begin(ctx context.Context, key, userID string) error
	SetState(ctx context.Context, key, state string) error
	AddReservation(ctx context.Context, key, productID string, quantity int) (bool, error)
	Reservations(ctx context.Context, key string) ([]attemptrepo.Reservation, error)
	MarkReleased(ctx context.Context, key, productID string) error
	StaleReserved(ctx context.Context, olderThan time.Duration) ([]attemptrepo.Attempt, error)
}

type profileRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	UpdateContact(ctx context.Context, id, phone, address string) error
}

type eventProducer interface {
	PublishOrderPlaced(ctx context.Context, ev events.OrderPlaced) error
}

type Service struct {
	carts    cartRepo
	products inventoryRepo
	orders   orderRepoIface
	attempts attemptRepoIface
	profiles profileRepo
	gateway  payment.Gateway
	auth     *AuthCache
	producer eventProducer

	paymentTimeout time.Duration
	retrier        *retrier
	logger         *log.Logger
}

type Deps struct {
	Carts    cartRepo
	Products inventoryRepo
	Orders   orderRepoIface
	Attempts attemptRepoIface
	Profiles profileRepo
	Gateway  payment.Gateway
	Auth     *AuthCache
	Producer eventProducer
}

func New(deps Deps, paymentTimeout time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if paymentTimeout <= 0 {
		paymentTimeout = 15 * time.Second
	}
	s := &Service{
		carts:          deps.Carts,
		products:       deps.Products,
		orders:         deps.Orders,
		attempts:       deps.Attempts,
		profiles:       deps.Profiles,
		gateway:        deps.Gateway,
		auth:           deps.Auth,
		producer:       deps.Producer,
		paymentTimeout: paymentTimeout,
		retrier:        newRetrier(logger),
		logger:         logger,
	}
	return s
}

// Close drains the best-effort retry queue.
func (s *Service) Close() {
	s.retrier.close()
}

// Snapshot captures the user's cart once, freezing product prices for the
// duration of the checkout attempt.
func (s *Service) Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	items, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	snap := domain.CartSnapshot{UserID: userID, CapturedAt: time.Now().UTC()}
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		snap.Lines = append(snap.Lines, domain.SnapshotLine{
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.Product.PriceCents,
		})
	}
	return snap, nil
}

type PlaceOrderInput struct {
	UserID          string
	Snapshot        domain.CartSnapshot
	ShippingAddress string
	Phone           string
	PaymentMethod   string
	// IdempotencyKey is optional; when empty a key is derived from the
	// customer, the snapshot content, and the current time bucket.
	IdempotencyKey string
}

// PlaceOrder runs the placement saga. Failures in payment, reservation, or
// materialization abort with full compensation; cart clear and profile sync
// degrade gracefully and never fail a durable order.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	// A retry that lands after the order became durable returns the prior
	// result instead of charging or decrementing again. The caller-supplied
	// key is checked before validation: the replayed cart may legitimately be
	// empty when the first attempt already cleared it.
	key := in.IdempotencyKey
	if key != "" {
		if existing, err := s.orders.GetByIdempotencyKey(ctx, key); err == nil {
			return existing, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if err := validate(in); err != nil {
		return nil, err
	}

	if key == "" {
		key = DeriveKey(in.UserID, in.Snapshot, time.Now())
		if existing, err := s.orders.GetByIdempotencyKey(ctx, key); err == nil {
			return existing, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if err := s.attempts.Begin(ctx, key, in.UserID); err != nil {
		return nil, fmt.Errorf("%w: begin attempt: %v", domain.ErrPersistence, err)
	}

	totalCents := in.Snapshot.TotalCents()

	// Step 1: authorize payment. Aborts before any state is written.
	paymentStatus := domain.PaymentPending
	if in.PaymentMethod != domain.PaymentCOD {
		if err := s.authorize(ctx, totalCents, in.PaymentMethod, key); err != nil {
			return nil, err
		}
		paymentStatus = domain.PaymentPaid
	}

	// Step 2: reserve inventory. Once a row is touched, caller cancellation
	// no longer aborts the sequence; completion or compensation runs on a
	// detached context.
	dctx := context.WithoutCancel(ctx)
	if err := s.reserve(dctx, key, in.Snapshot); err != nil {
		return nil, err
	}

	// Step 3: materialize the order and line items with frozen prices.
	items := make([]orderrepo.ItemInput, 0, len(in.Snapshot.Lines))
	for _, line := range in.Snapshot.Lines {
		items = append(items, orderrepo.ItemInput{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}
	ord, err := s.orders.CreateWithItems(dctx, orderrepo.CreateInput{
		UserID:          in.UserID,
		TotalCents:      totalCents,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   paymentStatus,
		ShippingAddress: in.ShippingAddress,
		Phone:           in.Phone,
		IdempotencyKey:  key,
		Items:           items,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race against a concurrent retry that committed the same
			// key. The recorded reservations belong to the committed order,
			// and any duplicate decrement this attempt applied was already
			// released when its record lost the insert race.
			if existing, getErr := s.orders.GetByIdempotencyKey(dctx, key); getErr == nil {
				_ = s.attempts.SetState(dctx, key, attemptrepo.StateCompleted)
				return existing, nil
			}
		}
		s.logger.Printf("checkout: materialize key=%s error=%v, compensating", key, err)
		if compErr := s.compensate(dctx, key); compErr != nil {
			s.logger.Printf("checkout: compensation incomplete key=%s error=%v", key, compErr)
		} else {
			_ = s.attempts.SetState(dctx, key, attemptrepo.StateCompensated)
		}
		return nil, fmt.Errorf("%w: create order: %v", domain.ErrPersistence, err)
	}
	if err := s.attempts.SetState(dctx, key, attemptrepo.StateCompleted); err != nil {
		s.logger.Printf("checkout: mark completed key=%s error=%v", key, err)
	}

	// Steps 4 and 5 plus event publication are best-effort. Caller
	// cancellation suppresses them; the retrier picks up failures.
	if ctx.Err() == nil {
		s.clearCart(dctx, in.UserID, in.Snapshot)
		s.syncProfile(dctx, in.UserID, in.Phone, in.ShippingAddress)
	} else {
		s.enqueueCartClear(in.UserID, in.Snapshot)
	}
	s.publish(dctx, ord, in.Snapshot)

	return ord, nil
}

func validate(in PlaceOrderInput) error {
	if len(in.Snapshot.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	for _, line := range in.Snapshot.Lines {
		if line.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
	}
	if !domain.PaymentMethodSupported(in.PaymentMethod) {
		return domain.ErrUnsupportedPayment
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return domain.Invalid("shipping address required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return domain.Invalid("phone required")
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, amountCents int64, method, key string) error {
	if outcome, ok := s.auth.Get(ctx, key); ok {
		switch outcome {
		case payment.OutcomeApproved:
			return nil
		case payment.OutcomeDeclined:
			return domain.ErrPaymentDeclined
		}
	}

	authCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	outcome, err := s.gateway.Authorize(authCtx, amountCents, method, key)
	if err != nil {
		// Transport failure: the charge may have landed. Same key on retry.
		s.logger.Printf("checkout: authorize key=%s error=%v", key, err)
		return domain.ErrPaymentIndeterminate
	}
	switch outcome {
	case payment.OutcomeApproved:
		s.auth.Set(ctx, key, outcome)
		return nil
	case payment.OutcomeDeclined:
		s.auth.Set(ctx, key, outcome)
		return domain.ErrPaymentDeclined
	default:
		return domain.ErrPaymentIndeterminate
	}
}

// reserve applies the conditional decrement line by line in ascending
// product-ID order, so concurrent placements over overlapping products
// always touch rows in the same order. Each applied line is recorded
// durably; a line already recorded for this key is skipped, which keeps the
// decrement exactly-once across retries of the same attempt.
func (s *Service) reserve(ctx context.Context, key string, snap domain.CartSnapshot) error {
	lines := make([]domain.SnapshotLine, len(snap.Lines))
	copy(lines, snap.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	recorded, err := s.attempts.Reservations(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: read reservations: %v", domain.ErrPersistence, err)
	}
	already := make(map[string]bool, len(recorded))
	for _, res := range recorded {
		if !res.Released {
			already[res.ProductID] = true
		}
	}

	for _, line := range lines {
		if already[line.ProductID] {
			continue
		}
		if err := s.products.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Printf("checkout: reserve key=%s product_id=%s error=%v, compensating", key, line.ProductID, err)
			if compErr := s.compensate(ctx, key); compErr != nil {
				s.logger.Printf("checkout: compensation incomplete key=%s error=%v", key, compErr)
			} else {
				_ = s.attempts.SetState(ctx, key, attemptrepo.StateCompensated)
			}
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				return err
			}
			return fmt.Errorf("%w: reserve stock: %v", domain.ErrPersistence, err)
		}
		inserted, err := s.attempts.AddReservation(ctx, key, line.ProductID, line.Quantity)
		if err != nil {
			// The decrement is applied but unrecorded; release it rather
			// than risk a leak.
			_ = s.releaseWithRetry(ctx, line.ProductID, line.Quantity)
			if compErr := s.compensate(ctx, key); compErr == nil {
				_ = s.attempts.SetState(ctx, key, attemptrepo.StateCompensated)
			}
			return fmt.Errorf("%w: record reservation: %v", domain.ErrPersistence, err)
		}
		if !inserted {
			// A concurrent attempt on the same key recorded this line between
			// the read above and now; the durable row accounts for its
			// decrement, making this one a duplicate. Give it back.
			if relErr := s.releaseWithRetry(ctx, line.ProductID, line.Quantity); relErr != nil {
				s.logger.Printf("checkout: duplicate decrement release key=%s product_id=%s error=%v", key, line.ProductID, relErr)
			}
		}
	}

	if err := s.attempts.SetState(ctx, key, attemptrepo.StateReserved); err != nil {
		s.logger.Printf("checkout: mark reserved key=%s error=%v", key, err)
	}
	return nil
}

// compensate releases every recorded, unreleased reservation of the attempt.
// A release that keeps failing leaves the attempt in the reserved state for
// the recovery pass; an un-compensated reservation is a stock leak and is
// never dropped silently.
func (s *Service) compensate(ctx context.Context, key string) error {
	recorded, err := s.attempts.Reservations(ctx, key)
	if err != nil {
		return err
	}
	var firstErr error
	for _, res := range recorded {
		if res.Released {
			continue
		}
		if err := s.releaseWithRetry(ctx, res.ProductID, res.Quantity); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.attempts.MarkReleased(ctx, key, res.ProductID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) releaseWithRetry(ctx context.Context, productID string, quantity int) error {
	var err error
	for attempt := 0; attempt < compensationRetries; attempt++ {
		if err = s.products.Release(ctx, productID, quantity); err == nil {
			return nil
		}
		time.Sleep(compensationBackoff << attempt)
	}
	return err
}

// Recover compensates attempts that reserved inventory but never produced an
// order, typically after a crash. Intended to run once at startup.
func (s *Service) Recover(ctx context.Context) error {
	stale, err := s.attempts.StaleReserved(ctx, staleAttemptAge)
	if err != nil {
		return err
	}
	for _, att := range stale {
		if _, err := s.orders.GetByIdempotencyKey(ctx, att.IdempotencyKey); err == nil {
			// Crashed after materialization; the order owns the decrements.
			_ = s.attempts.SetState(ctx, att.IdempotencyKey, attemptrepo.StateCompleted)
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		s.logger.Printf("checkout: recovering stale attempt key=%s", att.IdempotencyKey)
		if err := s.compensate(ctx, att.IdempotencyKey); err != nil {
			s.logger.Printf("checkout: recovery compensation incomplete key=%s error=%v", att.IdempotencyKey, err)
			continue
		}
		_ = s.attempts.SetState(ctx, att.IdempotencyKey, attemptrepo.StateCompensated)
	}
	return nil
}

// clearCart deletes exactly the snapshot's cart rows. Items added after the
// snapshot stay in the cart.
func (s *Service) clearCart(ctx context.Context, userID string, snap domain.CartSnapshot) {
	if _, err := s.carts.DeleteByIDs(ctx, userID, snap.CartItemIDs()); err != nil {
		s.logger.Printf("checkout: cart clear user_id=%s error=%v, queuing retry", userID, err)
		s.enqueueCartClear(userID, snap)
	}
}

func (s *Service) enqueueCartClear(userID string, snap domain.CartSnapshot) {
	s.retrier.enqueue("cart clear", func(ctx context.Context) error {
		_, err := s.carts.DeleteByIDs(ctx, userID, snap.CartItemIDs())
		return err
	})
}

func (s *Service) syncProfile(ctx context.Context, userID, phone, address string) {
	prof, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		s.logger.Printf("checkout: profile read user_id=%s error=%v", userID, err)
		return
	}
	if prof.Phone == phone && prof.Address == address {
		return
	}
	if err := s.profiles.UpdateContact(ctx, userID, phone, address); err != nil {
		s.logger.Printf("checkout: profile sync user_id=%s error=%v, queuing retry", userID, err)
		s.retrier.enqueue("profile sync", func(ctx context.Context) error {
			return s.profiles.UpdateContact(ctx, userID, phone, address)
		})
	}
}

func (s *Service) publish(ctx context.Context, ord *domain.Order, snap domain.CartSnapshot) {
	if s.producer == nil {
		return
	}
	ev := events.OrderPlaced{
		OrderID:       ord.ID,
		UserID:        ord.UserID,
		TotalCents:    ord.TotalCents,
		PaymentMethod: ord.PaymentMethod,
		PaymentStatus: string(ord.PaymentStatus),
		PlacedAt:      ord.CreatedAt,
	}
	for _, line := range snap.Lines {
		ev.Lines = append(ev.Lines, events.OrderPlacedLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}
	if err := s.producer.PublishOrderPlaced(ctx, ev); err != nil {
		s.logger.Printf("checkout: publish order.placed order_id=%s error=%v", ord.ID, err)
	}
}
