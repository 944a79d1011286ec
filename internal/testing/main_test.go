package testing

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"stockscan/internal/capture"
	"stockscan/internal/dashboard"
	"stockscan/internal/data"
	"stockscan/internal/detection"
	"stockscan/internal/inventory"
	"stockscan/internal/notify"
	"stockscan/internal/scan"
)

// TestSystemIntegration runs end-to-end flows against the mock detector
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	t.Run("UploadConfirmChair", testUploadConfirmChair)
	t.Run("RemoteServerError", testRemoteServerError)
	t.Run("EmptyDetection", testEmptyDetection)
	t.Run("EnvelopeResponse", testEnvelopeResponse)
	t.Run("CameraCaptureFromFrames", testCameraCaptureFromFrames)
	t.Run("DetectionTimeout", testDetectionTimeout)
	t.Run("ResetDiscardsLateResult", testResetDiscardsLateResult)
	t.Run("SimulatedDetection", testSimulatedDetection)
}

func testUploadConfirmChair(t *testing.T) {
	suite := NewTestSuite(t)
	id := suite.CreateScan(t)

	suite.AssertStatusCode(t, suite.UploadFile(t, id, GenerateTestImage(10)), http.StatusAccepted)
	snap := suite.WaitForResolved(t, id)
	if snap.State != scan.Resolved || len(snap.Results) != 1 || snap.Results[0].Name != "Chair" {
		t.Fatalf("resolved = %+v", snap)
	}
	if !strings.HasPrefix(suite.Detection.LastPayload(), "data:image/png;base64,") {
		t.Errorf("detector received %.40s", suite.Detection.LastPayload())
	}
	if !suite.HasNotification(id, notify.LevelSuccess, detection.MsgIdentified) {
		t.Error("missing identified notification")
	}

	status, env := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/confirm", nil)
	suite.AssertStatusCode(t, status, http.StatusOK)

	chair, err := suite.Inventory.Get(1)
	if err != nil || chair.Quantity != 13 || chair.Status != inventory.LowStock {
		t.Errorf("chair = %+v, %v", chair, err)
	}

	_, env = suite.Call(t, http.MethodGet, "/api/scans/"+id, nil)
	if ParseData[scan.Snapshot](t, env).State != scan.Idle {
		t.Error("session not back to idle")
	}

	events, err := suite.History.RecentEvents(context.Background(), 10)
	suite.AssertNoError(t, err)
	if len(events) != 1 || events[0].ItemName != "Chair" || events[0].SessionID != id {
		t.Errorf("history = %+v", events)
	}

	status, env = suite.Call(t, http.MethodGet, "/api/scans/history", nil)
	suite.AssertStatusCode(t, status, http.StatusOK)
	if listed := ParseData[[]data.ScanEvent](t, env); len(listed) != 1 || listed[0].ID != events[0].ID {
		t.Errorf("history endpoint = %+v", listed)
	}

	_, env = suite.Call(t, http.MethodGet, "/api/dashboard", nil)
	summary := ParseData[dashboard.Summary](t, env)
	if len(summary.RecentActivity) != dashboard.ActivityDays {
		t.Fatalf("activity = %+v", summary.RecentActivity)
	}
	if today := summary.RecentActivity[dashboard.ActivityDays-1]; today.Count != 3 {
		t.Errorf("today's activity = %+v", today)
	}
}

func testRemoteServerError(t *testing.T) {
	suite := NewTestSuite(t)
	suite.Detection.Configure(func(m *MockDetectionService) { m.ShouldFail = true })
	id := suite.CreateScan(t)

	suite.AssertStatusCode(t, suite.UploadFile(t, id, GenerateTestImage(20)), http.StatusAccepted)
	snap := suite.WaitForResolved(t, id)
	if snap.State != scan.Resolved || !snap.Failed || len(snap.Results) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !suite.HasNotification(id, notify.LevelError, detection.MsgFailed) {
		t.Error("missing failure notification")
	}

	status, env := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/confirm", nil)
	if status != http.StatusConflict || env.Code != "nothing_to_confirm" {
		t.Errorf("confirm = %d %s", status, env.Code)
	}

	// Nothing is retried automatically.
	if n := suite.Detection.Attempts(); n != 1 {
		t.Errorf("detect attempts = %d", n)
	}
}

func testEmptyDetection(t *testing.T) {
	suite := NewTestSuite(t)
	suite.Detection.Configure(func(m *MockDetectionService) { m.ReturnEmpty = true })
	id := suite.CreateScan(t)

	suite.UploadFile(t, id, GenerateTestImage(30))
	snap := suite.WaitForResolved(t, id)
	if snap.Failed || len(snap.Results) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !suite.HasNotification(id, notify.LevelWarning, detection.MsgNoItems) {
		t.Error("missing no-items warning")
	}
}

func testEnvelopeResponse(t *testing.T) {
	suite := NewTestSuite(t)
	suite.Detection.Configure(func(m *MockDetectionService) {
		m.RawResponse = `{"detections":[{"name":"Book","quantity":2,"confidence":0.97},{"name":"Pen","quantity":8,"confidence":0.89}]}`
	})
	id := suite.CreateScan(t)

	suite.UploadFile(t, id, GenerateTestImage(40))
	snap := suite.WaitForResolved(t, id)
	if len(snap.Results) != 2 || snap.Results[0].Percent != "97%" {
		t.Fatalf("snapshot = %+v", snap)
	}

	status, _ := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/confirm", nil)
	suite.AssertStatusCode(t, status, http.StatusOK)

	_, env := suite.Call(t, http.MethodGet, "/api/inventory?q=scanned", nil)
	scanned := ParseData[[]inventory.Item](t, env)
	if len(scanned) != 2 {
		t.Errorf("scanned items = %+v", scanned)
	}
}

func testCameraCaptureFromFrames(t *testing.T) {
	suite := NewTestSuite(t)
	id := suite.CreateScan(t)

	status, _ := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/camera", nil)
	suite.AssertStatusCode(t, status, http.StatusOK)
	if !suite.HasNotification(id, notify.LevelInfo, scan.MsgCameraOn) {
		t.Error("missing camera notification")
	}

	status, _ = suite.Call(t, http.MethodPost, "/api/scans/"+id+"/capture", nil)
	suite.AssertStatusCode(t, status, http.StatusAccepted)
	suite.WaitForResolved(t, id)

	if !strings.HasPrefix(suite.Detection.LastPayload(), "data:image/jpeg;base64,") {
		t.Errorf("captured frame sent as %.40s", suite.Detection.LastPayload())
	}

	status, env := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/capture", nil)
	if status != http.StatusConflict || env.Code != "invalid_state" {
		t.Errorf("capture without camera = %d %s", status, env.Code)
	}
}

func testDetectionTimeout(t *testing.T) {
	suite := NewTestSuite(t, WithDetectionTimeout(100*time.Millisecond))
	suite.Detection.Configure(func(m *MockDetectionService) { m.SimulateNetworkDelay = 2 * time.Second })
	id := suite.CreateScan(t)

	suite.UploadFile(t, id, GenerateTestImage(50))
	snap := suite.WaitForResolved(t, id)
	if !snap.Failed {
		t.Errorf("timed-out detection should resolve failed: %+v", snap)
	}
	if !suite.HasNotification(id, notify.LevelError, detection.MsgFailed) {
		t.Error("missing failure notification")
	}
}

func testResetDiscardsLateResult(t *testing.T) {
	suite := NewTestSuite(t)
	suite.Detection.Configure(func(m *MockDetectionService) { m.SimulateNetworkDelay = 300 * time.Millisecond })
	id := suite.CreateScan(t)

	suite.UploadFile(t, id, GenerateTestImage(60))
	status, env := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/upload", map[string]string{
		"image": capture.DataURL("image/png", GenerateTestImage(61)),
	})
	if status != http.StatusConflict || env.Code != "busy" {
		t.Errorf("upload while pending = %d %s", status, env.Code)
	}

	status, _ = suite.Call(t, http.MethodPost, "/api/scans/"+id+"/reset", nil)
	suite.AssertStatusCode(t, status, http.StatusOK)

	time.Sleep(500 * time.Millisecond)
	_, env = suite.Call(t, http.MethodGet, "/api/scans/"+id, nil)
	if snap := ParseData[scan.Snapshot](t, env); snap.State != scan.Idle || len(snap.Results) != 0 {
		t.Errorf("late result applied: %+v", snap)
	}
}

func testSimulatedDetection(t *testing.T) {
	suite := NewTestSuite(t, WithSimulatedDetection(), WithCameraSource("none"))
	id := suite.CreateScan(t)

	status, env := suite.Call(t, http.MethodPost, "/api/scans/"+id+"/camera", nil)
	if status != http.StatusServiceUnavailable || env.Code != "camera_unavailable" {
		t.Errorf("camera = %d %s", status, env.Code)
	}
	if !suite.HasNotification(id, notify.LevelError, scan.MsgCameraDenied) {
		t.Error("missing camera denied notification")
	}

	suite.UploadFile(t, id, GenerateTestImage(70))
	snap := suite.WaitForResolved(t, id)
	if len(snap.Results) != 1 || snap.Results[0].Name != "Chair" {
		t.Errorf("simulated results = %+v", snap.Results)
	}
	if n := suite.Detection.Attempts(); n != 0 {
		t.Errorf("simulated mode reached the remote service %d times", n)
	}
}
