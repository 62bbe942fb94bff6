// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/geometry"
	"github.com/banshee-data/foam/internal/workpool"
)

// MiniDetector is a small detector with the JungFrau layout rules, for
// tests that do not need full-size modules: 8x12 modules of 2x2 asics.
var MiniDetector = geometry.Variant{
	Name:        "mini",
	ModuleShape: [2]int{8, 12},
	AsicGrid:    [2]int{2, 2},
	BorderWidth: 1,
	MaxColumns:  2,
	EdgeRule:    geometry.EdgeAsic,
}

var pool = workpool.New(2)

// NewMiniGeometry returns a rows x cols MiniDetector geometry.
func NewMiniGeometry(t *testing.T, rows, cols int) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New(MiniDetector, rows, cols, geometry.WithPool(pool))
	if err != nil {
		t.Fatalf("geometry.New(%d, %d): %v", rows, cols, err)
	}
	return g
}

// Ramp returns an h x w image whose pixel (r, c) holds r*w + c.
func Ramp(h, w int) *array.Dense[float32] {
	img := array.New[float32](h, w)
	for i := range img.Data {
		img.Data[i] = float32(i)
	}
	return img
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewDebugRequest creates a test HTTP request from a loopback address, which
// tsweb debug handlers accept.
func NewDebugRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
