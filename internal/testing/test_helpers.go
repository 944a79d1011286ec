// test_helpers.go - wires the full service stack behind an httptest server
package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"stockscan/internal/api"
	"stockscan/internal/capture"
	"stockscan/internal/dashboard"
	"stockscan/internal/data"
	"stockscan/internal/detection"
	"stockscan/internal/inventory"
	"stockscan/internal/middleware"
	"stockscan/internal/notify"
	"stockscan/internal/scan"
	"stockscan/internal/security"
)

// TestConfig holds configuration for test runs
type TestConfig struct {
	DBPath       string
	CatalogPath  string
	FrameDir     string
	UseRealAPI   bool          // route detection to the mock service
	Timeout      time.Duration // detection timeout, zero for none
	TestDataDir  string
	CameraSource string
}

// TestSuite provides utilities for integration testing
type TestSuite struct {
	Config    TestConfig
	Server    *httptest.Server
	Client    *http.Client
	History   *data.History
	Inventory *inventory.Service
	Scans     *scan.Manager
	Recent    *notify.Recent
	Detection *MockDetectionService
}

type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

// Option tweaks the suite configuration before services are built.
type Option func(*TestConfig)

func WithSimulatedDetection() Option {
	return func(c *TestConfig) { c.UseRealAPI = false }
}

func WithDetectionTimeout(d time.Duration) Option {
	return func(c *TestConfig) { c.Timeout = d }
}

func WithCameraSource(source string) Option {
	return func(c *TestConfig) { c.CameraSource = source }
}

// NewTestSuite builds the stack against a mock detection service, a temp
// SQLite history and a directory camera.
func NewTestSuite(t *testing.T, opts ...Option) *TestSuite {
	t.Helper()
	testDir := t.TempDir()

	config := TestConfig{
		DBPath:      filepath.Join(testDir, "history.db"),
		CatalogPath: filepath.Join(testDir, "catalog.yaml"),
		FrameDir:    filepath.Join(testDir, "frames"),
		UseRealAPI:  true,
		TestDataDir: testDir,
	}
	config.CameraSource = config.FrameDir
	for _, opt := range opts {
		opt(&config)
	}

	if err := createTestCatalog(config.CatalogPath); err != nil {
		t.Fatalf("Failed to create test catalog: %v", err)
	}
	if err := createFrameDir(config.FrameDir, 3); err != nil {
		t.Fatalf("Failed to create frames: %v", err)
	}

	suite := &TestSuite{
		Config:    config,
		Client:    &http.Client{Timeout: 30 * time.Second},
		Detection: NewMockDetectionService(),
		Recent:    notify.NewRecent(notify.DefaultRecentSize),
	}
	t.Cleanup(suite.Detection.Close)

	catalog, err := inventory.LoadCatalog(config.CatalogPath)
	if err != nil {
		t.Fatalf("Failed to load test catalog: %v", err)
	}
	if suite.Inventory, err = inventory.NewSeededService(catalog.Items); err != nil {
		t.Fatalf("Failed to seed inventory: %v", err)
	}

	if suite.History, err = data.Open(config.DBPath); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { suite.History.Close() })

	hub := notify.NewHub()
	hub.Subscribe(suite.Recent.Add)

	detector := detection.NewClient(detection.Config{
		Endpoint:   suite.Detection.Endpoint(),
		UseRealAPI: config.UseRealAPI,
		Timeout:    config.Timeout,
		Catalog:    catalog.DetectionSamples,
	}, hub, detection.WithHTTPClient(suite.Detection.Server.Client()))

	suite.Scans = scan.NewManager(scan.Deps{
		Device:    capture.NewDevice(config.CameraSource),
		Detector:  detector,
		Inventory: suite.Inventory,
		History:   suite.History,
		Notifier:  hub,
	})
	t.Cleanup(suite.Scans.Shutdown)

	srv := &api.Server{
		Inventory:     suite.Inventory,
		Scans:         suite.Scans,
		Dashboard:     dashboard.NewBuilder(suite.Inventory, suite.History),
		History:       suite.History,
		Recent:        suite.Recent,
		Notifier:      hub,
		DetectionMode: "remote",
	}
	suite.Server = httptest.NewServer(security.CORS("*")(middleware.APIMiddleware(srv.Routes())))
	t.Cleanup(suite.Server.Close)

	return suite
}

// MakeAPIRequest sends body as JSON when non-nil.
func (ts *TestSuite) MakeAPIRequest(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.Client.Do(req)
}

// Call performs a request and decodes the envelope.
func (ts *TestSuite) Call(t *testing.T, method, path string, body interface{}) (int, Envelope) {
	t.Helper()
	resp, err := ts.MakeAPIRequest(method, path, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func ParseData[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

func (ts *TestSuite) CreateScan(t *testing.T) string {
	t.Helper()
	status, env := ts.Call(t, http.MethodPost, "/api/scans", nil)
	ts.AssertStatusCode(t, status, http.StatusCreated)
	return ParseData[scan.Snapshot](t, env).ID
}

// UploadFile posts a multipart upload and returns the status code.
func (ts *TestSuite) UploadFile(t *testing.T, scanID string, content []byte) int {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "upload.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	resp, err := ts.Client.Post(ts.Server.URL+"/api/scans/"+scanID+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// WaitForResolved polls the session until detection settles.
func (ts *TestSuite) WaitForResolved(t *testing.T, scanID string) scan.Snapshot {
	t.Helper()
	var snap scan.Snapshot
	ok := ts.WaitForCondition(func() bool {
		_, env := ts.Call(t, http.MethodGet, "/api/scans/"+scanID, nil)
		snap = ParseData[scan.Snapshot](t, env)
		return snap.State != scan.Pending
	}, 5*time.Second)
	if !ok {
		t.Fatalf("scan %s still pending", scanID)
	}
	return snap
}

// HasNotification reports whether a notification with level and message
// was published for the session.
func (ts *TestSuite) HasNotification(scanID string, level notify.Level, message string) bool {
	for _, n := range ts.Recent.List(scanID) {
		if n.Level == level && n.Message == message {
			return true
		}
	}
	return false
}

func (ts *TestSuite) AssertStatusCode(t *testing.T, got, expected int) {
	t.Helper()
	if got != expected {
		t.Fatalf("Expected status code %d, got %d", expected, got)
	}
}

func (ts *TestSuite) AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func (ts *TestSuite) WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
