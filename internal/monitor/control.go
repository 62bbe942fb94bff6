package monitor

import (
	"fmt"
	"math"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/foam/internal/httputil"
)

// Controller is the part of the processor an operator may change while
// trains are flowing. *pipeline.Processor implements it.
type Controller interface {
	SetMovingAverageWindow(n int)
	SetThreshold(lower, upper float64) error
	MaskRegion(x, y, w, h int, masked bool)
	ClearRegionMask()
	SetBackground(v float64) error
	SetCropArea(x, y, w, h int) error
	ClearCropArea()
}

type windowRequest struct {
	Window int `json:"window"`
}

// thresholdRequest leaves a bound open when it is null or omitted.
type thresholdRequest struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

type backgroundRequest struct {
	Background float64 `json:"background"`
}

type cropRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type regionRequest struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	W      int  `json:"w"`
	H      int  `json:"h"`
	Masked bool `json:"masked"`
}

// AttachControlRoutes mounts JSON endpoints for the moving-average window,
// the threshold mask, the region mask, the background and the crop area
// under /debug/control/.
func AttachControlRoutes(mux *http.ServeMux, c Controller) {
	debug := tsweb.Debugger(mux)
	debug.Handle("control/window", "POST {\"window\": n} to resize the moving average", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost) {
			return
		}
		var req windowRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if req.Window < 1 {
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("window must be at least 1, got %d", req.Window))
			return
		}
		c.SetMovingAverageWindow(req.Window)
		httputil.WriteJSON(w, http.StatusOK, req)
	}))

	debug.Handle("control/threshold", "POST {\"lower\": a, \"upper\": b} to set the threshold mask", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost) {
			return
		}
		var req thresholdRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		lower, upper := math.Inf(-1), math.Inf(1)
		if req.Lower != nil {
			lower = *req.Lower
		}
		if req.Upper != nil {
			upper = *req.Upper
		}
		if err := c.SetThreshold(lower, upper); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}))

	debug.Handle("control/region", "POST a rectangle to mask or unmask it, DELETE to clear", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			c.ClearRegionMask()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req regionRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if req.W <= 0 || req.H <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "region width and height must be positive")
			return
		}
		c.MaskRegion(req.X, req.Y, req.W, req.H, req.Masked)
		httputil.WriteJSON(w, http.StatusOK, req)
	}))

	debug.Handle("control/background", "POST {\"background\": v} to set the subtracted background", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost) {
			return
		}
		var req backgroundRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := c.SetBackground(req.Background); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}))

	debug.Handle("control/crop", "POST a rectangle to crop the mean images, DELETE to restore the full image", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodPost, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			c.ClearCropArea()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req cropRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := c.SetCropArea(req.X, req.Y, req.W, req.H); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}))
}
