// README: Concurrency tests for booking state transitions against Postgres (run with -race).
package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schoolride/internal/testutil"
	"schoolride/internal/types"
)

func setupRaceService(t *testing.T) (*Service, *Store) {
	t.Helper()
	db := testutil.Postgres(t, "bookings", "booking_state_events")
	store := NewStore(db)
	svc := NewService(store, Deps{})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return svc, store
}

func seedPending(t *testing.T, store *Store, id types.ID) {
	t.Helper()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	err := store.Create(context.Background(), &Booking{
		ID:         id,
		ParentID:   "p_race",
		DriverID:   "d_race",
		ChildID:    "c_race",
		Pickup:     types.Location{Lat: 6.9271, Lng: 79.8612},
		Dropoff:    types.Location{Lat: 6.9057, Lng: 79.8537},
		RideDate:   day,
		EndDate:    day.AddDate(0, 0, 4),
		DailyTime:  "07:00",
		Status:     StatusPending,
		TotalPrice: 2500,
		Currency:   types.DefaultCurrency,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
}

func TestConcurrentConfirmVsCancel(t *testing.T) {
	ctx := context.Background()
	svc, store := setupRaceService(t)
	seedPending(t, store, "b_confirm_cancel")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Confirm(ctx, "b_confirm_cancel")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(ctx, CancelCommand{BookingID: "b_confirm_cancel", ActorID: "p_race", ActorType: ActorParent})
		errs <- err
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success < 1 {
		t.Fatalf("expected at least one success, got %d", success)
	}

	b, err := svc.Get(ctx, "b_confirm_cancel")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if success == 2 && b.Status != StatusCancelled {
		t.Fatalf("expected cancelled after confirm+cancel, got %s", b.Status)
	}
	if b.Status != StatusConfirmed && b.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", b.Status)
	}
}

func TestConcurrentConfirmSameBooking(t *testing.T) {
	ctx := context.Background()
	svc, store := setupRaceService(t)
	seedPending(t, store, "b_multi_confirm")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Confirm(ctx, "b_multi_confirm")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	b, err := svc.Get(ctx, "b_multi_confirm")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.StatusVersion != 1 {
		t.Fatalf("status_version = %d, want 1", b.StatusVersion)
	}
}

func TestConcurrentCancelDate(t *testing.T) {
	ctx := context.Background()
	svc, store := setupRaceService(t)
	seedPending(t, store, "b_skip_dates")
	if _, err := svc.Confirm(ctx, "b_skip_dates"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		day := time.Date(2026, 3, 3+i, 0, 0, 0, 0, time.UTC)
		wg.Add(1)
		go func(d time.Time) {
			defer wg.Done()
			_, err := svc.CancelDate(ctx, CancelDateCommand{BookingID: "b_skip_dates", ParentID: "p_race", Date: d})
			errs <- err
		}(day)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("cancel date: %v", err)
		}
	}
	b, err := svc.Get(ctx, "b_skip_dates")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if len(b.CancelledDates) != success {
		t.Fatalf("cancelled dates = %d, successes = %d", len(b.CancelledDates), success)
	}
}
