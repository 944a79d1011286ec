package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"stockscan/internal/logger"
)

// Service holds the inventory in memory. Nothing is persisted; a restart
// reseeds from the catalog.
type Service struct {
	items  []Item
	nextID int

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	return &Service{nextID: 1}
}

// NewSeededService returns a service holding the given items.
func NewSeededService(items []Item) (*Service, error) {
	s := NewService()
	if err := s.Seed(items); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadCatalog reads a seed file. The format follows the extension: .json, .yaml or .yml.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &catalog)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &catalog)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	logger.LogInfo("Loaded catalog %s: %d items, %d detection samples",
		path, len(catalog.Items), len(catalog.DetectionSamples))
	return &catalog, nil
}

// Seed replaces the whole inventory. Items without an id get the next free one.
func (s *Service) Seed(items []Item) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	seen := make(map[int]bool, len(items))
	maxID := 0
	for _, item := range items {
		if item.ID == 0 {
			continue
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate item id %d: %w", item.ID, ErrInvalidItem)
		}
		seen[item.ID] = true
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	seeded := make([]Item, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" || item.Quantity < 0 {
			return fmt.Errorf("seed item %q: %w", item.Name, ErrInvalidItem)
		}
		if item.ID == 0 {
			maxID++
			item.ID = maxID
		}
		item.Status = StatusFor(item.Quantity)
		seeded = append(seeded, item)
	}
	sort.Slice(seeded, func(i, j int) bool { return seeded[i].ID < seeded[j].ID })

	s.items = seeded
	s.nextID = maxID + 1
	s.lastLoaded = time.Now()
	return nil
}

// List returns a copy of every item in id order.
func (s *Service) List() []Item {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Filter returns the items whose name or category contains term, ignoring
// case. An empty term returns the full list.
func (s *Service) Filter(term string) []Item {
	if term == "" {
		return s.List()
	}
	needle := strings.ToLower(term)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Item, 0)
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Name), needle) ||
			strings.Contains(strings.ToLower(item.Category), needle) {
			out = append(out, item)
		}
	}
	return out
}

func (s *Service) Get(id int) (Item, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i], nil
	}
	return Item{}, ErrNotFound
}

// Add stores a new item and returns it with its assigned id and status.
func (s *Service) Add(name, category string, quantity int) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" || quantity < 0 {
		return Item{}, ErrInvalidItem
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	item := s.appendLocked(name, strings.TrimSpace(category), quantity)
	logger.LogInfo("Inventory item added: #%d %s (%d)", item.ID, item.Name, item.Quantity)
	return item, nil
}

// Update rewrites name, category and quantity of an item and recomputes its status.
func (s *Service) Update(id int, name, category string, quantity int) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" || quantity < 0 {
		return Item{}, ErrInvalidItem
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Item{}, ErrNotFound
	}
	s.items[i].Name = name
	s.items[i].Category = strings.TrimSpace(category)
	s.items[i].Quantity = quantity
	s.items[i].Status = StatusFor(quantity)
	return s.items[i], nil
}

// Delete removes the item with id. Deleting a missing id is a no-op; the
// result reports whether anything was removed.
func (s *Service) Delete(id int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	logger.LogInfo("Inventory item removed: #%d", id)
	return true
}

// AddScanned adds quantity units to the item whose name matches (ignoring
// case), or creates it in the Scanned category.
func (s *Service) AddScanned(name string, quantity int) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" || quantity < 0 {
		return Item{}, ErrInvalidItem
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.items {
		if strings.EqualFold(s.items[i].Name, name) {
			if quantity > math.MaxInt-s.items[i].Quantity {
				return Item{}, fmt.Errorf("adding %d to %q overflows quantity: %w", quantity, s.items[i].Name, ErrInvalidItem)
			}
			s.items[i].Quantity += quantity
			s.items[i].Status = StatusFor(s.items[i].Quantity)
			return s.items[i], nil
		}
	}
	return s.appendLocked(name, ScannedCategory, quantity), nil
}

// Stats returns counters for the health endpoint.
func (s *Service) Stats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	units := 0
	for _, item := range s.items {
		units += item.Quantity
	}
	return map[string]interface{}{
		"items_count": len(s.items),
		"total_units": units,
		"last_loaded": s.lastLoaded,
	}
}

func (s *Service) appendLocked(name, category string, quantity int) Item {
	item := Item{
		ID:       s.nextID,
		Name:     name,
		Category: category,
		Quantity: quantity,
		Status:   StatusFor(quantity),
	}
	s.nextID++
	s.items = append(s.items, item)
	return item
}

func (s *Service) indexOf(id int) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
