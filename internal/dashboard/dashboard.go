// Package dashboard derives the inventory overview from live inventory data
// and the scan history.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockscan/internal/data"
	"stockscan/internal/inventory"
)

const (
	TopItemsLimit = 5
	ActivityDays  = 7
)

// ItemSource is satisfied by *inventory.Service.
type ItemSource interface {
	List() []inventory.Item
}

// ActivitySource is satisfied by *data.History.
type ActivitySource interface {
	DailyActivity(ctx context.Context, since time.Time) ([]data.DayCount, error)
}

type StatusCount struct {
	Name  inventory.Status `json:"name"`
	Items int              `json:"items"`
	Units int              `json:"value"`
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TopItem struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Activity struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Summary struct {
	TotalItems      int             `json:"total_items"`
	TotalUnits      int             `json:"total_units"`
	LowStock        int             `json:"low_stock"`
	OutOfStock      int             `json:"out_of_stock"`
	StatusBreakdown []StatusCount   `json:"status_breakdown"`
	Categories      []CategoryCount `json:"categories"`
	TopItems        []TopItem       `json:"top_items"`
	RecentActivity  []Activity      `json:"recent_activity"`
}

type Builder struct {
	items    ItemSource
	activity ActivitySource
	now      func() time.Time
}

// NewBuilder returns a dashboard builder. activity may be nil when scan
// history is disabled.
func NewBuilder(items ItemSource, activity ActivitySource) *Builder {
	return &Builder{items: items, activity: activity, now: time.Now}
}

func (b *Builder) Build(ctx context.Context) (Summary, error) {
	items := b.items.List()

	s := Summary{
		TotalItems:     len(items),
		Categories:     []CategoryCount{},
		TopItems:       []TopItem{},
		RecentActivity: []Activity{},
	}

	byStatus := map[inventory.Status]*StatusCount{}
	for _, st := range []inventory.Status{inventory.InStock, inventory.LowStock, inventory.OutOfStock} {
		s.StatusBreakdown = append(s.StatusBreakdown, StatusCount{Name: st})
	}
	for i := range s.StatusBreakdown {
		byStatus[s.StatusBreakdown[i].Name] = &s.StatusBreakdown[i]
	}

	categoryIndex := map[string]int{}
	for _, item := range items {
		s.TotalUnits += item.Quantity
		switch item.Status {
		case inventory.LowStock:
			s.LowStock++
		case inventory.OutOfStock:
			s.OutOfStock++
		}
		if sc, ok := byStatus[item.Status]; ok {
			sc.Items++
			sc.Units += item.Quantity
		}

		idx, ok := categoryIndex[item.Category]
		if !ok {
			idx = len(s.Categories)
			categoryIndex[item.Category] = idx
			s.Categories = append(s.Categories, CategoryCount{Name: item.Category})
		}
		s.Categories[idx].Count += item.Quantity
	}

	s.TopItems = topItems(items, TopItemsLimit)

	activity, err := b.recentActivity(ctx)
	if err != nil {
		return s, err
	}
	s.RecentActivity = activity
	return s, nil
}

func topItems(items []inventory.Item, limit int) []TopItem {
	sorted := make([]inventory.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Quantity != sorted[j].Quantity {
			return sorted[i].Quantity > sorted[j].Quantity
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	top := make([]TopItem, 0, len(sorted))
	for _, item := range sorted {
		top = append(top, TopItem{ID: item.ID, Name: item.Name, Quantity: item.Quantity})
	}
	return top
}

// recentActivity returns one entry per UTC day for the last ActivityDays
// days, today included, with zero for days without scans.
func (b *Builder) recentActivity(ctx context.Context) ([]Activity, error) {
	if b.activity == nil {
		return []Activity{}, nil
	}

	today := b.now().UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(ActivityDays - 1))

	counts, err := b.activity.DailyActivity(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("load scan activity: %w", err)
	}
	byDate := make(map[string]int, len(counts))
	for _, c := range counts {
		byDate[c.Date] = c.Count
	}

	days := make([]Activity, 0, ActivityDays)
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		days = append(days, Activity{Date: key, Label: d.Format("Jan 2"), Count: byDate[key]})
	}
	return days, nil
}
