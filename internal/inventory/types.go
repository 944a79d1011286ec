package inventory

import (
	"errors"

	"stockscan/internal/detection"
)

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("inventory item not found")
	// ErrInvalidItem is returned for an empty name or a negative quantity.
	ErrInvalidItem = errors.New("invalid inventory item")
)

// Status thresholds
const (
	InStockAbove  = 30
	LowStockAbove = 0
)

type Status string

const (
	InStock    Status = "In Stock"
	LowStock   Status = "Low Stock"
	OutOfStock Status = "Out of Stock"
)

// StatusFor derives the stock status from a quantity.
func StatusFor(quantity int) Status {
	switch {
	case quantity > InStockAbove:
		return InStock
	case quantity > LowStockAbove:
		return LowStock
	default:
		return OutOfStock
	}
}

type Item struct {
	ID       int    `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Status   Status `json:"status" yaml:"-"`
}

// Catalog is the seed file layout (JSON or YAML).
type Catalog struct {
	Items            []Item             `json:"items" yaml:"items"`
	DetectionSamples []detection.Result `json:"detection_samples" yaml:"detection_samples"`
}

// ScannedCategory is assigned to items first seen through a confirmed scan.
const ScannedCategory = "Scanned"

// DefaultItems is the demo stock loaded when no catalog file is configured.
func DefaultItems() []Item {
	return []Item{
		{ID: 1, Name: "Office Chair", Category: "Furniture", Quantity: 86},
		{ID: 2, Name: "Desk Lamp", Category: "Electronics", Quantity: 42},
		{ID: 3, Name: "Notebook Pack", Category: "Office Supplies", Quantity: 128},
		{ID: 4, Name: "Wireless Keyboard", Category: "Electronics", Quantity: 36},
		{ID: 5, Name: "Wireless Mouse", Category: "Electronics", Quantity: 24},
		{ID: 6, Name: "USB-C Cable", Category: "Electronics", Quantity: 15},
		{ID: 7, Name: "Whiteboard Markers", Category: "Office Supplies", Quantity: 0},
		{ID: 8, Name: "Conference Table", Category: "Furniture", Quantity: 5},
		{ID: 9, Name: "Headphones", Category: "Electronics", Quantity: 0},
		{ID: 10, Name: "Filing Cabinet", Category: "Furniture", Quantity: 12},
	}
}
