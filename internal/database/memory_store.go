package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// MemoryStore is a single-process BusStore and SeatStore. Seat maps are
// serialized by an in-process keyed lock, so it must not back more than one
// server instance.
type MemoryStore struct {
	mu       sync.RWMutex
	buses    map[string]*models.Bus
	bookings map[string]*models.Booking
	holds    map[models.SeatKey]map[int]string
	locks    *keyedLocker

	// seat transactions that read the bus share its guard; bus updates
	// take it exclusively
	guardsMu sync.Mutex
	guards   map[string]*sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buses:    make(map[string]*models.Bus),
		bookings: make(map[string]*models.Booking),
		holds:    make(map[models.SeatKey]map[int]string),
		locks:    newKeyedLocker(),
		guards:   make(map[string]*sync.RWMutex),
	}
}

func (s *MemoryStore) busGuard(busID string) *sync.RWMutex {
	s.guardsMu.Lock()
	defer s.guardsMu.Unlock()
	g, ok := s.guards[busID]
	if !ok {
		g = &sync.RWMutex{}
		s.guards[busID] = g
	}
	return g
}

// CreateBus stores a new bus
func (s *MemoryStore) CreateBus(ctx context.Context, bus *models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bus.ID == "" {
		bus.ID = uuid.New().String()
	}
	for _, existing := range s.buses {
		if existing.BusNumber == bus.BusNumber {
			return fmt.Errorf("%w: bus number %s already exists", models.ErrInvalidRequest, bus.BusNumber)
		}
	}

	now := time.Now()
	bus.CreatedAt = now
	bus.UpdatedAt = now
	stored := *bus
	s.buses[bus.ID] = &stored
	return nil
}

// GetBus retrieves a bus by ID
func (s *MemoryStore) GetBus(ctx context.Context, busID string) (*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bus, ok := s.buses[busID]
	if !ok {
		return nil, fmt.Errorf("bus %s: %w", busID, models.ErrNotFound)
	}
	c := *bus
	return &c, nil
}

// ListBuses lists buses ordered by bus number
func (s *MemoryStore) ListBuses(ctx context.Context, activeOnly bool) ([]*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buses := make([]*models.Bus, 0, len(s.buses))
	for _, bus := range s.buses {
		if activeOnly && !bus.IsActive {
			continue
		}
		c := *bus
		buses = append(buses, &c)
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].BusNumber < buses[j].BusNumber })
	return buses, nil
}

// UpdateBusLocked holds the bus guard exclusively while fn runs and the
// result is stored, so no seat transaction that read the bus is in flight
func (s *MemoryStore) UpdateBusLocked(ctx context.Context, busID string, fn func(tx BusTx) (*models.Bus, error)) (*models.Bus, error) {
	if _, err := s.GetBus(ctx, busID); err != nil {
		return nil, err
	}

	guard := s.busGuard(busID)
	guard.Lock()
	defer guard.Unlock()

	// reread under the guard
	current, err := s.GetBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	updated, err := fn(&memoryBusTx{ctx: ctx, store: s, bus: current})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return current, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.buses {
		if id != updated.ID && existing.BusNumber == updated.BusNumber {
			return nil, fmt.Errorf("%w: bus number %s already exists", models.ErrInvalidRequest, updated.BusNumber)
		}
	}

	updated.UpdatedAt = time.Now()
	stored := *updated
	s.buses[updated.ID] = &stored
	return updated, nil
}

type memoryBusTx struct {
	ctx   context.Context
	store *MemoryStore
	bus   *models.Bus
}

func (t *memoryBusTx) Current() *models.Bus {
	c := *t.bus
	return &c
}

func (t *memoryBusTx) CountActiveBookingsFrom(fromDate string) (int, error) {
	return t.store.CountActiveBookingsFrom(t.ctx, t.bus.ID, fromDate)
}

// HeldSeats returns the committed holds for a seat map
func (s *MemoryStore) HeldSeats(ctx context.Context, key models.SeatKey) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seats := make([]int, 0, len(s.holds[key]))
	for seat := range s.holds[key] {
		seats = append(seats, seat)
	}
	sort.Ints(seats)
	return seats, nil
}

// GetBooking retrieves a booking by ID
func (s *MemoryStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingLocked(bookingID)
}

func (s *MemoryStore) bookingLocked(bookingID string) (*models.Booking, error) {
	booking, ok := s.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrNotFound)
	}
	return booking.Clone(), nil
}

// ListBookings lists bookings matching the filter, newest first
func (s *MemoryStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if filter.BusID != "" && b.BusID != filter.BusID {
			continue
		}
		if filter.TravelDate != "" && b.TravelDate != filter.TravelDate {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.CreatorRole != "" && b.CreatorRole != filter.CreatorRole {
			continue
		}
		if filter.CreatedBy != "" && b.CreatedBy != filter.CreatedBy {
			continue
		}
		matched = append(matched, b.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*models.Booking{}, nil
	}
	if filter.Offset > 0 {
		matched = matched[filter.Offset:]
	}
	if limit := listingLimit(filter.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ListExpiredPending returns pending bookings whose hold has lapsed, oldest first
func (s *MemoryStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if b.IsExpired(now) {
			expired = append(expired, b.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// CountActiveBookingsFrom counts pending and confirmed bookings on or after a date
func (s *MemoryStore) CountActiveBookingsFrom(ctx context.Context, busID, fromDate string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, b := range s.bookings {
		// YYYY-MM-DD compares correctly as a string
		if b.BusID == busID && b.HoldsSeats() && b.TravelDate >= fromDate {
			count++
		}
	}
	return count, nil
}

// WithSeatLock runs fn holding the seat map's in-process lock. Writes are
// staged on the tx and applied atomically when fn succeeds.
func (s *MemoryStore) WithSeatLock(ctx context.Context, key models.SeatKey, fn func(tx SeatTx) error) error {
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	held := make(map[int]string, len(s.holds[key]))
	for seat, owner := range s.holds[key] {
		held[seat] = owner
	}
	s.mu.RUnlock()

	tx := &memorySeatTx{store: s, key: key, held: held, staged: make(map[string]*models.Booking)}
	defer tx.releaseBus()
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	if len(held) == 0 {
		delete(s.holds, key)
	} else {
		s.holds[key] = held
	}
	return nil
}

type memorySeatTx struct {
	store  *MemoryStore
	key    models.SeatKey
	held   map[int]string
	staged map[string]*models.Booking
	guard  *sync.RWMutex
}

func (t *memorySeatTx) Bus() (*models.Bus, error) {
	if t.guard == nil {
		t.guard = t.store.busGuard(t.key.BusID)
		t.guard.RLock()
	}
	return t.store.GetBus(context.Background(), t.key.BusID)
}

func (t *memorySeatTx) releaseBus() {
	if t.guard != nil {
		t.guard.RUnlock()
		t.guard = nil
	}
}

func (t *memorySeatTx) HeldSeats() (map[int]string, error) {
	out := make(map[int]string, len(t.held))
	for seat, owner := range t.held {
		out[seat] = owner
	}
	return out, nil
}

func (t *memorySeatTx) GetBooking(bookingID string) (*models.Booking, error) {
	if b, ok := t.staged[bookingID]; ok {
		return b.Clone(), nil
	}
	return t.store.GetBooking(context.Background(), bookingID)
}

func (t *memorySeatTx) CreateBooking(booking *models.Booking) error {
	if _, err := t.GetBooking(booking.ID); err == nil {
		return fmt.Errorf("failed to create booking: %s already exists", booking.ID)
	}
	if t.referenceTaken(booking.BookingReference) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, booking.BookingReference)
	}

	var taken []int
	for _, seat := range booking.SeatNumbers {
		if _, ok := t.held[seat]; ok {
			taken = append(taken, seat)
		}
	}
	if len(taken) > 0 {
		return models.NewSeatConflictError(taken)
	}

	for _, seat := range booking.SeatNumbers {
		t.held[seat] = booking.ID
	}
	t.staged[booking.ID] = booking.Clone()
	return nil
}

func (t *memorySeatTx) referenceTaken(ref string) bool {
	if ref == "" {
		return false
	}
	for _, b := range t.staged {
		if b.BookingReference == ref {
			return true
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, b := range t.store.bookings {
		if b.BookingReference == ref {
			return true
		}
	}
	return false
}

func (t *memorySeatTx) UpdateBooking(booking *models.Booking) error {
	if _, err := t.GetBooking(booking.ID); err != nil {
		return err
	}
	t.staged[booking.ID] = booking.Clone()
	return nil
}

func (t *memorySeatTx) ReleaseSeats(bookingID string) (int, error) {
	released := 0
	for seat, owner := range t.held {
		if owner == bookingID {
			delete(t.held, seat)
			released++
		}
	}
	return released, nil
}

// keyedLocker hands out one mutex per seat map. A buffered channel is used
// instead of sync.Mutex so waiters can give up when their context ends.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[models.SeatKey]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[models.SeatKey]*keyLock)}
}

func (l *keyedLocker) acquire(ctx context.Context, key models.SeatKey) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.unref(key, kl)
		}, nil
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, fmt.Errorf("%w: seat map %s: %v", models.ErrBusy, key, ctx.Err())
	}
}

func (l *keyedLocker) unref(key models.SeatKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
