package detection

import (
	"errors"
	"fmt"
	"time"
)

// Result is one detected item class with its count and best confidence.
type Result struct {
	Name       string  `json:"name" yaml:"name"`
	Quantity   int     `json:"quantity" yaml:"quantity"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Simulated result selection
const (
	ModeAll    = "all"
	ModeRandom = "random"
)

// Config is everything the client needs; it is passed in, never read from the environment.
type Config struct {
	Endpoint         string
	UseRealAPI       bool
	Timeout          time.Duration // zero: no timeout, a hung request stays pending
	SimulatedLatency time.Duration
	SimulatedMode    string
	Catalog          []Result // simulated results; DefaultCatalog when empty
}

// DefaultCatalog is returned by the simulated detector.
func DefaultCatalog() []Result {
	return []Result{
		{Name: "Chair", Quantity: 3, Confidence: 0.92},
		{Name: "Desk Lamp", Quantity: 5, Confidence: 0.85},
		{Name: "Book", Quantity: 12, Confidence: 0.97},
		{Name: "Pen", Quantity: 8, Confidence: 0.89},
	}
}

// ErrEmptyResult reports a well-formed response without detections.
var ErrEmptyResult = errors.New("no items detected")

// TransportError means the request could not be sent or the response not read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("detection transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteDetectionError carries a non-2xx answer from the detection service.
type RemoteDetectionError struct {
	StatusCode int
	Body       string
}

func (e *RemoteDetectionError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}
