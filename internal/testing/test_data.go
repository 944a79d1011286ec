package testing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// testCatalog seeds the suite's inventory. Chair is present so confirmed
// scans increment an existing row.
const testCatalog = `items:
  - id: 1
    name: Chair
    category: Furniture
    quantity: 10
  - id: 2
    name: Desk Lamp
    category: Electronics
    quantity: 42
  - id: 3
    name: Whiteboard Markers
    category: Office Supplies
    quantity: 0
detection_samples:
  - name: Chair
    quantity: 3
    confidence: 0.92
`

func createTestCatalog(path string) error {
	return os.WriteFile(path, []byte(testCatalog), 0o644)
}

// GenerateTestImage returns a small PNG; shade varies the pixels so
// different calls produce different payloads.
func GenerateTestImage(shade uint8) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// createFrameDir writes n PNG frames for a directory camera.
func createFrameDir(dir string, n int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "frame_"+string(rune('a'+i))+".png")
		if err := os.WriteFile(name, GenerateTestImage(uint8(i*40)), 0o644); err != nil {
			return err
		}
	}
	return nil
}
