package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/slotlock"
	"github.com/courtbook/court-booking/internal/store/memstore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	store *memstore.Store
	orch  *booking.Orchestrator
	clock *fakeClock
}

// newEnv seeds two courts, one equipment SKU and one coach, with no
// pricing rules, so one court-hour totals exactly its hourly rate.
func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	st := memstore.New()
	st.SetClock(clock.Now)
	st.AddCourt(model.Court{ID: 1, Name: "Center Court", Type: model.CourtIndoor, Enabled: true, HourlyCents: 60000})
	st.AddCourt(model.Court{ID: 2, Name: "Court 2", Type: model.CourtOutdoor, Enabled: true, HourlyCents: 45000})
	st.AddEquipment(model.EquipmentItem{SKU: "RACKET-PRO", Name: "Pro Racket", TotalQty: 4, RentalCents: 2500, Active: true})
	st.AddCoach(model.Coach{ID: 1, Name: "Dana", HourlyCents: 40000, Active: true})
	orch := booking.New(st, st, st, st, slotlock.NewMutexMap(),
		booking.WithClock(clock.Now),
		booking.WithHoldWindow(10*time.Minute),
	)
	return &env{store: st, orch: orch, clock: clock}
}

func window(t *testing.T, hour int) model.TimeWindow {
	t.Helper()
	start := time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
	return model.NewTimeWindow(start, start.Add(time.Hour))
}

func request(requester string, courtID uint64, w model.TimeWindow) booking.Request {
	return booking.Request{Requester: requester, CourtID: courtID, Window: w}
}

func TestConcurrentSameSlotOneWinner(t *testing.T) {
	for i := 0; i < 100; i++ {
		e := newEnv(t)
		w := window(t, 10)

		results := make([]*booking.Outcome, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				requester := []string{"alice", "bob"}[j]
				results[j], errs[j] = e.orch.Book(context.Background(), request(requester, 1, w))
			}(j)
		}
		wg.Wait()

		confirmed, waitlisted := 0, 0
		for j := 0; j < 2; j++ {
			if errs[j] != nil {
				t.Fatalf("iteration %d: unexpected error: %v", i, errs[j])
			}
			switch results[j].Status {
			case booking.StatusConfirmed:
				confirmed++
			case booking.StatusWaitlisted:
				waitlisted++
			}
		}
		if confirmed != 1 || waitlisted != 1 {
			t.Fatalf("iteration %d: got %d confirmed, %d waitlisted; want 1 and 1", i, confirmed, waitlisted)
		}
	}
}

func TestDifferentCourtsDoNotContend(t *testing.T) {
	e := newEnv(t)
	w := window(t, 10)

	a, err := e.orch.Book(context.Background(), request("alice", 1, w))
	if err != nil {
		t.Fatalf("book court 1: %v", err)
	}
	b, err := e.orch.Book(context.Background(), request("bob", 2, w))
	if err != nil {
		t.Fatalf("book court 2: %v", err)
	}
	if a.Status != booking.StatusConfirmed || b.Status != booking.StatusConfirmed {
		t.Fatalf("statuses = %q, %q; want both confirmed", a.Status, b.Status)
	}
}

func TestWaitlistFIFOAndPromotion(t *testing.T) {
	e := newEnv(t)
	w := window(t, 10)
	ctx := context.Background()

	first, err := e.orch.Book(ctx, request("alice", 1, w))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	bobOut, err := e.orch.Book(ctx, request("bob", 1, w))
	if err != nil {
		t.Fatalf("book bob: %v", err)
	}
	carolOut, err := e.orch.Book(ctx, request("carol", 1, w))
	if err != nil {
		t.Fatalf("book carol: %v", err)
	}
	if bobOut.Status != booking.StatusWaitlisted || carolOut.Status != booking.StatusWaitlisted {
		t.Fatalf("statuses = %q, %q; want both waitlisted", bobOut.Status, carolOut.Status)
	}
	if bobOut.Entry.Seq != 1 || carolOut.Entry.Seq != 2 {
		t.Fatalf("seqs = %d, %d; want 1, 2", bobOut.Entry.Seq, carolOut.Entry.Seq)
	}

	res, err := e.orch.Cancel(ctx, first.Booking.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Booking.Status != model.BookingCancelled {
		t.Fatalf("cancelled booking status = %q", res.Booking.Status)
	}
	if res.Promoted == nil || res.Promoted.Requester != "bob" {
		t.Fatalf("promoted = %+v; want bob", res.Promoted)
	}
	if res.Promoted.NotifiedUntil == nil {
		t.Fatal("promoted entry has no hold deadline")
	}
	wantHold := e.clock.Now().Add(10 * time.Minute)
	if !res.Promoted.NotifiedUntil.Equal(wantHold) {
		t.Fatalf("hold until %v; want %v", res.Promoted.NotifiedUntil, wantHold)
	}
}

func TestPromotedRequesterConfirmConsumesEntry(t *testing.T) {
	e := newEnv(t)
	w := window(t, 10)
	ctx := context.Background()

	first, _ := e.orch.Book(ctx, request("alice", 1, w))
	e.orch.Book(ctx, request("bob", 1, w))
	e.orch.Book(ctx, request("carol", 1, w))

	if _, err := e.orch.Cancel(ctx, first.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	out, err := e.orch.Book(ctx, request("bob", 1, w))
	if err != nil {
		t.Fatalf("bob rebook: %v", err)
	}
	if out.Status != booking.StatusConfirmed {
		t.Fatalf("bob status = %q; want confirmed", out.Status)
	}

	head, err := e.store.HeadOf(ctx, model.SlotKey(1, w))
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head == nil || head.Requester != "carol" {
		t.Fatalf("waitlist head = %+v; want carol", head)
	}
}

func TestExpiredHoldIsSkippedOnNextPromotion(t *testing.T) {
	e := newEnv(t)
	w := window(t, 10)
	ctx := context.Background()

	first, _ := e.orch.Book(ctx, request("alice", 1, w))
	e.orch.Book(ctx, request("bob", 1, w))
	e.orch.Book(ctx, request("carol", 1, w))

	if _, err := e.orch.Cancel(ctx, first.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Bob holds priority but never confirms; after the hold lapses the
	// slot goes to whoever books it, and the next promotion skips him.
	e.clock.Advance(11 * time.Minute)

	second, err := e.orch.Book(ctx, request("dave", 1, w))
	if err != nil {
		t.Fatalf("dave book: %v", err)
	}
	if second.Status != booking.StatusConfirmed {
		t.Fatalf("dave status = %q; want confirmed", second.Status)
	}

	res, err := e.orch.Cancel(ctx, second.Booking.ID)
	if err != nil {
		t.Fatalf("dave cancel: %v", err)
	}
	if res.Promoted == nil || res.Promoted.Requester != "carol" {
		t.Fatalf("promoted = %+v; want carol", res.Promoted)
	}
}

func TestIdempotencyKeyReplay(t *testing.T) {
	e := newEnv(t)
	w := window(t, 10)
	ctx := context.Background()

	req := request("alice", 1, w)
	req.IdempotencyKey = "req-42"

	first, err := e.orch.Book(ctx, req)
	if err != nil {
		t.Fatalf("first book: %v", err)
	}
	second, err := e.orch.Book(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Status != booking.StatusConfirmed || second.Booking.ID != first.Booking.ID {
		t.Fatalf("replay returned booking %d status %q; want booking %d confirmed",
			second.Booking.ID, second.Status, first.Booking.ID)
	}

	mine, err := e.store.ListByRequester(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("got %d bookings after replay; want 1", len(mine))
	}
}

func TestEquipmentCapacityAcrossOverlappingBookings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Two different courts, same window, sharing the 4-racket pool.
	req1 := request("alice", 1, window(t, 10))
	req1.Equipment = []booking.EquipmentRequest{{SKU: "RACKET-PRO", Quantity: 3}}
	if _, err := e.orch.Book(ctx, req1); err != nil {
		t.Fatalf("first book: %v", err)
	}

	req2 := request("bob", 2, window(t, 10))
	req2.Equipment = []booking.EquipmentRequest{{SKU: "RACKET-PRO", Quantity: 2}}
	_, err := e.orch.Book(ctx, req2)
	var short *booking.InsufficientInventoryError
	if !errors.As(err, &short) {
		t.Fatalf("err = %v; want InsufficientInventoryError", err)
	}
	if short.SKU != "RACKET-PRO" || short.Requested != 2 || short.Available != 1 {
		t.Fatalf("shortfall = %+v; want RACKET-PRO requested 2 available 1", short)
	}

	// A non-overlapping window sees the full pool again.
	req3 := request("bob", 2, window(t, 12))
	req3.Equipment = []booking.EquipmentRequest{{SKU: "RACKET-PRO", Quantity: 4}}
	if _, err := e.orch.Book(ctx, req3); err != nil {
		t.Fatalf("later window: %v", err)
	}
}

func TestCoachConflictIsNotWaitlisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	coachID := uint64(1)

	req1 := request("alice", 1, window(t, 10))
	req1.CoachID = &coachID
	if _, err := e.orch.Book(ctx, req1); err != nil {
		t.Fatalf("first book: %v", err)
	}

	// Different court, same coach, same hour: a hard conflict, because
	// only the court resource carries a waitlist.
	req2 := request("bob", 2, window(t, 10))
	req2.CoachID = &coachID
	_, err := e.orch.Book(ctx, req2)
	var conflict *booking.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v; want ConflictError", err)
	}
	if conflict.ResourceType != model.ResourceCoach {
		t.Fatalf("conflict resource = %q; want coach", conflict.ResourceType)
	}
}

func TestValidationRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := window(t, 10)
	badQty := request("alice", 1, w)
	badQty.Equipment = []booking.EquipmentRequest{{SKU: "RACKET-PRO", Quantity: 0}}
	badCoach := request("alice", 1, w)
	unknownCoach := uint64(99)
	badCoach.CoachID = &unknownCoach

	e.store.AddCourt(model.Court{ID: 3, Name: "Closed", Type: model.CourtIndoor, Enabled: false, HourlyCents: 10000})

	cases := []struct {
		name  string
		req   booking.Request
		field string
	}{
		{"empty requester", request("", 1, w), "requester"},
		{"inverted window", request("alice", 1, model.TimeWindow{Start: w.End, End: w.Start}), "window"},
		{"unknown court", request("alice", 99, w), "court_id"},
		{"disabled court", request("alice", 3, w), "court_id"},
		{"zero equipment quantity", badQty, "equipment"},
		{"unknown coach", badCoach, "coach_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.orch.Book(ctx, tc.req)
			var verr *booking.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v; want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q; want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestCancelTwiceFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.orch.Book(ctx, request("alice", 1, window(t, 10)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := e.orch.Cancel(ctx, out.Booking.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := e.orch.Cancel(ctx, out.Booking.ID); !errors.Is(err, booking.ErrAlreadyCancelled) {
		t.Fatalf("second cancel err = %v; want ErrAlreadyCancelled", err)
	}
	if _, err := e.orch.Cancel(ctx, 999); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("missing booking err = %v; want ErrNotFound", err)
	}
}

func TestCancelledSlotIsRebookable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := window(t, 10)

	out, _ := e.orch.Book(ctx, request("alice", 1, w))
	if _, err := e.orch.Cancel(ctx, out.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, err := e.orch.Book(ctx, request("bob", 1, w))
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if again.Status != booking.StatusConfirmed {
		t.Fatalf("rebook status = %q; want confirmed", again.Status)
	}
}

func TestQuoteHasNoSideEffects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := window(t, 10)

	res, err := e.orch.Quote(ctx, request("alice", 1, w))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if res.TotalCents != 60000 {
		t.Fatalf("total = %d; want 60000", res.TotalCents)
	}

	// The slot must still be freely bookable by someone else.
	out, err := e.orch.Book(ctx, request("bob", 1, w))
	if err != nil {
		t.Fatalf("book after quote: %v", err)
	}
	if out.Status != booking.StatusConfirmed {
		t.Fatalf("status = %q; want confirmed", out.Status)
	}
}

func TestBookingCarriesCommitTimePricingSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.store.UpsertRule(ctx, model.PricingRule{
		Name:     "peak surcharge",
		Enabled:  true,
		Priority: 10,
		Match:    model.RuleMatch{StartTime: "09:00", EndTime: "12:00"},
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 20},
		Stack:    model.StackAdditive,
	}); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	out, err := e.orch.Book(ctx, request("alice", 1, window(t, 10)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if out.Booking.TotalCents != 72000 {
		t.Fatalf("total = %d; want 72000", out.Booking.TotalCents)
	}
	if len(out.Booking.PricingSnapshot) == 0 {
		t.Fatal("booking has no pricing snapshot")
	}

	// Rule edits after commit never change the persisted total.
	if _, err := e.store.UpsertRule(ctx, model.PricingRule{
		ID: 1, Name: "peak surcharge", Enabled: true, Priority: 10,
		Match:    model.RuleMatch{StartTime: "09:00", EndTime: "12:00"},
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 50},
		Stack:    model.StackAdditive,
	}); err != nil {
		t.Fatalf("edit rule: %v", err)
	}
	stored, err := e.store.Get(ctx, out.Booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TotalCents != 72000 {
		t.Fatalf("stored total = %d after rule edit; want 72000", stored.TotalCents)
	}
}
