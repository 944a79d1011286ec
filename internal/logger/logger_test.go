package logger

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestSetupLoggerWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	err := SetupLogger(Config{
		LogsDirectory: dir,
		LogFileFormat: "test_%s.log",
		TimeZone:      "UTC",
		NoColor:       true,
		Console:       &console,
	})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	t.Cleanup(func() { Close() })

	if err := SetupLogger(Config{LogsDirectory: dir}); err == nil {
		t.Error("second SetupLogger should fail")
	}

	LogWarn("camera %s unavailable", "front")
	LogDebug("hidden at info level")

	data, err := os.ReadFile(GetLogFilePath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "camera front unavailable") {
		t.Errorf("log file missing message: %s", data)
	}
	if strings.Contains(string(data), "hidden at info level") {
		t.Error("debug record should be filtered at INFO")
	}
	if !strings.Contains(console.String(), "camera front unavailable") {
		t.Errorf("console missing message: %s", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	if got := GetClientIP(r); got != "10.0.0.7" {
		t.Errorf("remote addr: got %q", got)
	}

	r.Header.Set("X-Real-IP", "192.168.1.2")
	if got := GetClientIP(r); got != "192.168.1.2" {
		t.Errorf("x-real-ip: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := GetClientIP(r); got != "203.0.113.9" {
		t.Errorf("x-forwarded-for: got %q", got)
	}
}
