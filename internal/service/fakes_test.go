package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/internal/repository"
	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

// ledger is an in-memory stand-in for the slots and bookings tables that
// mirrors the repository's transactional checks under one mutex.
type ledger struct {
	mu       sync.Mutex
	slots    map[string]models.Slot
	bookings map[string]models.Booking
	seq      int
}

func newLedger() *ledger {
	return &ledger{slots: map[string]models.Slot{}, bookings: map[string]models.Booking{}}
}

func (l *ledger) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s-%03d", prefix, l.seq)
}

type memorySlots struct{ *ledger }

func (m memorySlots) Create(ctx context.Context, slot *models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.slots {
		if existing.CounsellorID == slot.CounsellorID && existing.Overlaps(slot.StartAt, slot.EndAt) {
			return repository.ErrSlotOverlap
		}
	}
	if slot.ID == "" {
		slot.ID = m.nextID("slot")
	}
	m.slots[slot.ID] = *slot
	return nil
}

func (m memorySlots) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (m memorySlots) Cancel(ctx context.Context, id string, at time.Time) (*models.Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if slot.Cancelled() {
		return &slot, false, nil
	}
	for _, booking := range m.bookings {
		if booking.SlotID == id && booking.Status.Active() {
			return nil, false, repository.ErrSlotTaken
		}
	}
	slot.CancelledAt = &at
	m.slots[id] = slot
	return &slot, true, nil
}

func (m memorySlots) List(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Slot, error] {
	return func(yield func(models.Slot, error) bool) {
		m.mu.Lock()
		var out []models.Slot
		for _, slot := range m.slots {
			if slot.CounsellorID != filter.CounsellorID || (slot.Cancelled() && !filter.IncludeCancelled) {
				continue
			}
			if filter.To != nil && !slot.StartAt.Before(*filter.To) {
				continue
			}
			if filter.From != nil && !slot.EndAt.After(*filter.From) {
				continue
			}
			out = append(out, slot)
		}
		m.mu.Unlock()
		slices.SortFunc(out, func(a, b models.Slot) int {
			if c := a.StartAt.Compare(b.StartAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		for _, slot := range out {
			if !yield(slot, nil) {
				return
			}
		}
	}
}

type memoryBookings struct{ *ledger }

func (m memoryBookings) Claim(ctx context.Context, slotID, studentRef string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if slot.Cancelled() || !slot.EndAt.After(now) {
		return nil, repository.ErrSlotClosed
	}
	for _, booking := range m.bookings {
		if booking.SlotID == slotID && booking.Status.Active() {
			if booking.StudentRef == studentRef {
				return nil, repository.ErrDuplicateClaim
			}
			return nil, repository.ErrSlotTaken
		}
	}
	booking := models.Booking{
		ID:           m.nextID("booking"),
		SlotID:       slotID,
		CounsellorID: slot.CounsellorID,
		StudentRef:   studentRef,
		Status:       models.BookingStatusPending,
		RequestedAt:  now,
	}
	m.bookings[booking.ID] = booking
	return &booking, nil
}

func (m memoryBookings) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &booking, nil
}

func (m memoryBookings) UpdateStatus(ctx context.Context, params repository.UpdateBookingStatusParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[params.ID]
	if !ok || booking.Status != models.BookingStatusPending {
		return sql.ErrNoRows
	}
	booking.Status = params.Status
	decidedAt := params.DecidedAt
	decidedBy := params.DecidedBy
	booking.DecidedAt = &decidedAt
	booking.DecidedBy = &decidedBy
	m.bookings[params.ID] = booking
	return nil
}

func (m memoryBookings) filtered(keep func(models.Booking) bool) iter.Seq2[models.Booking, error] {
	return func(yield func(models.Booking, error) bool) {
		m.mu.Lock()
		var out []models.Booking
		for _, booking := range m.bookings {
			if keep(booking) {
				out = append(out, booking)
			}
		}
		m.mu.Unlock()
		slices.SortFunc(out, func(a, b models.Booking) int {
			if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		for _, booking := range out {
			if !yield(booking, nil) {
				return
			}
		}
	}
}

func (m memoryBookings) ListByCounsellor(ctx context.Context, counsellorID string) iter.Seq2[models.Booking, error] {
	return m.filtered(func(b models.Booking) bool { return b.CounsellorID == counsellorID })
}

func (m memoryBookings) ListByStudent(ctx context.Context, studentRef string) iter.Seq2[models.Booking, error] {
	return m.filtered(func(b models.Booking) bool { return b.StudentRef == studentRef })
}

func (m memoryBookings) Stream(ctx context.Context, filter models.BookingFilter) iter.Seq2[models.Booking, error] {
	return m.filtered(func(b models.Booking) bool { return matchesFilter(b, filter) })
}

func (m memoryBookings) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var all []models.Booking
	for booking, err := range m.Stream(ctx, filter) {
		if err != nil {
			return nil, 0, err
		}
		all = append(all, booking)
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := min(start+filter.PageSize, len(all))
	return all[start:end], len(all), nil
}

func (m memoryBookings) Summary(ctx context.Context, counsellorID string) (*models.BookingSummary, error) {
	summary := &models.BookingSummary{CounsellorID: counsellorID}
	for booking := range m.Stream(ctx, models.BookingFilter{CounsellorID: counsellorID}) {
		summary.Add(booking.Status, 1)
	}
	return summary, nil
}

func matchesFilter(b models.Booking, filter models.BookingFilter) bool {
	if filter.CounsellorID != "" && b.CounsellorID != filter.CounsellorID {
		return false
	}
	if filter.StudentRef != "" && b.StudentRef != filter.StudentRef {
		return false
	}
	return len(filter.Status) == 0 || slices.Contains(filter.Status, b.Status)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (r *recordingEvents) Publish(ctx context.Context, event models.BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []models.BookingEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BookingEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

type stubDirectory struct {
	counsellors map[string]string
	students    map[string]string
}

func (d stubDirectory) ResolveCounsellorName(ctx context.Context, id string) string {
	if name, ok := d.counsellors[id]; ok {
		return name
	}
	return UnknownCounsellor
}

func (d stubDirectory) ResolveStudentDisplay(ctx context.Context, prn string) string {
	if name, ok := d.students[prn]; ok {
		return fmt.Sprintf("%s (%s)", name, prn)
	}
	return prn
}

// tickingClock returns successive instants one second apart.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(time.Second)
		return now
	}
}

var (
	adminClaims     = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	counsellorC1    = &models.JWTClaims{UserID: "C1", Role: models.RoleCounsellor}
	counsellorC2    = &models.JWTClaims{UserID: "C2", Role: models.RoleCounsellor}
	studentS1       = &models.JWTClaims{UserID: "user-s1", Role: models.RoleStudent, PRN: "S1"}
	studentS2       = &models.JWTClaims{UserID: "user-s2", Role: models.RoleStudent, PRN: "S2"}
	scenarioDay     = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	scenarioMorning = scenarioDay.Add(7 * time.Hour)
)

func at(hour, minute int) time.Time {
	return scenarioDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type harness struct {
	ledger   *ledger
	events   *recordingEvents
	slots    *SlotService
	bookings *BookingService
	cache    *memoryCache
}

func newHarness() *harness {
	l := newLedger()
	events := &recordingEvents{}
	cache := newMemoryCache()
	opts := BookingOptions{
		RequestTimeout:   time.Second,
		ReadRetryBackoff: time.Millisecond,
		Now:              tickingClock(scenarioMorning),
	}
	slots := NewSlotService(memorySlots{l}, events, nil, opts, nil)
	directory := stubDirectory{
		counsellors: map[string]string{"C1": "Dr. Meera Iyer"},
		students:    map[string]string{"S1": "Asha Rao"},
	}
	cacheSvc := NewCacheService(cache, nil, time.Minute, nil, true)
	bookings := NewBookingService(memoryBookings{l}, memorySlots{l}, directory, cacheSvc, events, nil, opts, nil)
	return &harness{ledger: l, events: events, slots: slots, bookings: bookings, cache: cache}
}
