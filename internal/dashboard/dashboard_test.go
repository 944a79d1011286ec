package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockscan/internal/data"
	"stockscan/internal/inventory"
)

type staticItems []inventory.Item

func (s staticItems) List() []inventory.Item { return s }

type staticActivity struct {
	days  []data.DayCount
	err   error
	since time.Time
}

func (a *staticActivity) DailyActivity(_ context.Context, since time.Time) ([]data.DayCount, error) {
	a.since = since
	return a.days, a.err
}

func item(id int, name, category string, qty int) inventory.Item {
	return inventory.Item{ID: id, Name: name, Category: category, Quantity: qty, Status: inventory.StatusFor(qty)}
}

func TestBuildSummary(t *testing.T) {
	items := staticItems{
		item(1, "Office Chair", "Furniture", 86),
		item(2, "Desk Lamp", "Electronics", 12),
		item(3, "Stapler", "Office Supplies", 0),
		item(4, "Notebook Pack", "Office Supplies", 128),
		item(5, "Keyboard", "Electronics", 36),
		item(6, "Mouse", "Electronics", 36),
		item(7, "Monitor", "Electronics", 5),
	}
	b := NewBuilder(items, nil)

	s, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if s.TotalItems != 7 || s.TotalUnits != 303 {
		t.Errorf("totals = %d items %d units", s.TotalItems, s.TotalUnits)
	}
	if s.LowStock != 2 || s.OutOfStock != 1 {
		t.Errorf("low = %d out = %d", s.LowStock, s.OutOfStock)
	}

	want := []StatusCount{
		{Name: inventory.InStock, Items: 4, Units: 286},
		{Name: inventory.LowStock, Items: 2, Units: 17},
		{Name: inventory.OutOfStock, Items: 1, Units: 0},
	}
	for i, w := range want {
		if s.StatusBreakdown[i] != w {
			t.Errorf("status[%d] = %+v, want %+v", i, s.StatusBreakdown[i], w)
		}
	}

	if len(s.Categories) != 3 || s.Categories[0].Name != "Furniture" || s.Categories[1].Count != 89 {
		t.Errorf("categories = %+v", s.Categories)
	}

	if len(s.TopItems) != TopItemsLimit {
		t.Fatalf("top items = %d", len(s.TopItems))
	}
	gotIDs := []int{}
	for _, ti := range s.TopItems {
		gotIDs = append(gotIDs, ti.ID)
	}
	wantIDs := []int{4, 1, 5, 6, 2}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("top ids = %v, want %v", gotIDs, wantIDs)
		}
	}

	if s.RecentActivity == nil || len(s.RecentActivity) != 0 {
		t.Errorf("activity without history = %+v", s.RecentActivity)
	}
}

func TestRecentActivityZeroFilled(t *testing.T) {
	act := &staticActivity{days: []data.DayCount{
		{Date: "2026-10-12", Count: 4},
		{Date: "2026-10-17", Count: 9},
	}}
	b := NewBuilder(staticItems{}, act)
	b.now = func() time.Time { return time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC) }

	s, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.RecentActivity) != ActivityDays {
		t.Fatalf("days = %d", len(s.RecentActivity))
	}
	if !act.since.Equal(time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", act.since)
	}

	first, last := s.RecentActivity[0], s.RecentActivity[ActivityDays-1]
	if first.Date != "2026-10-11" || first.Count != 0 || first.Label != "Oct 11" {
		t.Errorf("first = %+v", first)
	}
	if s.RecentActivity[1].Count != 4 {
		t.Errorf("second = %+v", s.RecentActivity[1])
	}
	if last.Date != "2026-10-17" || last.Count != 9 {
		t.Errorf("last = %+v", last)
	}
}

func TestBuildActivityError(t *testing.T) {
	b := NewBuilder(staticItems{item(1, "Pen", "Office Supplies", 3)}, &staticActivity{err: errors.New("disk gone")})
	s, err := b.Build(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if s.TotalItems != 1 {
		t.Errorf("partial summary lost: %+v", s)
	}
}
