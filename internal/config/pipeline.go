package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/banshee-data/foam/internal/geometry"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig is the root configuration of the acquisition pipeline.
// Every field is optional; the Get* methods supply the default for any
// field the JSON leaves out.
type PipelineConfig struct {
	// Detector geometry
	Detector       *string `json:"detector,omitempty"` // "JungFrau" or "ePix100"
	ModuleRows     *int    `json:"module_rows,omitempty"`
	ModuleCols     *int    `json:"module_cols,omitempty"`
	IgnoreTileEdge *bool   `json:"ignore_tile_edge,omitempty"`

	// Worker pool size; 0 selects one worker per CPU.
	Workers *int `json:"workers,omitempty"`

	// Image model
	MovingAverageWindow *int     `json:"moving_average_window,omitempty"`
	ThresholdMaskLower  *float64 `json:"threshold_mask_lower,omitempty"` // open when omitted
	ThresholdMaskUpper  *float64 `json:"threshold_mask_upper,omitempty"` // open when omitted

	// Edge detection
	EdgeKernelSize    *int     `json:"edge_kernel_size,omitempty"`
	EdgeSigma         *float64 `json:"edge_sigma,omitempty"`
	EdgeThresholdLow  *float64 `json:"edge_threshold_low,omitempty"`
	EdgeThresholdHigh *float64 `json:"edge_threshold_high,omitempty"`

	// Figure-of-merit history kept for the monitor.
	FOMHistory *int `json:"fom_history,omitempty"`

	// Storage
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a PipelineConfig with every field set to its
// default value.
func DefaultPipelineConfig() *PipelineConfig {
	c := EmptyPipelineConfig()
	return &PipelineConfig{
		Detector:            ptrString(c.GetDetector()),
		ModuleRows:          ptrInt(c.GetModuleRows()),
		ModuleCols:          ptrInt(c.GetModuleCols()),
		IgnoreTileEdge:      ptrBool(c.GetIgnoreTileEdge()),
		Workers:             ptrInt(0),
		MovingAverageWindow: ptrInt(c.GetMovingAverageWindow()),
		EdgeKernelSize:      ptrInt(c.GetEdgeKernelSize()),
		EdgeSigma:           ptrFloat64(c.GetEdgeSigma()),
		EdgeThresholdLow:    ptrFloat64(c.GetEdgeThresholdLow()),
		EdgeThresholdHigh:   ptrFloat64(c.GetEdgeThresholdHigh()),
		FOMHistory:          ptrInt(c.GetFOMHistory()),
		DatabasePath:        ptrString(c.GetDatabasePath()),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to their defaults, so partial configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return err
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.MovingAverageWindow != nil && *c.MovingAverageWindow < 1 {
		return fmt.Errorf("moving_average_window must be at least 1, got %d", *c.MovingAverageWindow)
	}

	if lo, hi := c.GetThresholdMask(); lo > hi {
		return fmt.Errorf("threshold_mask_lower %v exceeds threshold_mask_upper %v", lo, hi)
	}

	if k := c.GetEdgeKernelSize(); k < 1 || k%2 == 0 {
		return fmt.Errorf("edge_kernel_size must be a positive odd number, got %d", k)
	}
	if s := c.GetEdgeSigma(); !(s > 0) {
		return fmt.Errorf("edge_sigma must be positive, got %v", s)
	}
	if lo, hi := c.GetEdgeThresholdLow(), c.GetEdgeThresholdHigh(); lo < 0 || lo > hi {
		return fmt.Errorf("edge thresholds must satisfy 0 <= low <= high, got (%v, %v)", lo, hi)
	}

	if c.FOMHistory != nil && *c.FOMHistory < 1 {
		return fmt.Errorf("fom_history must be at least 1, got %d", *c.FOMHistory)
	}

	return nil
}

// Geometry returns the detector geometry selection of this configuration.
func (c *PipelineConfig) Geometry() geometry.Config {
	return geometry.Config{
		Detector: c.GetDetector(),
		Rows:     c.GetModuleRows(),
		Cols:     c.GetModuleCols(),
	}
}

// GetDetector returns the detector value or the default.
func (c *PipelineConfig) GetDetector() string {
	if c.Detector == nil || *c.Detector == "" {
		return geometry.JungFrau.Name
	}
	return *c.Detector
}

// GetModuleRows returns the module_rows value or the default.
func (c *PipelineConfig) GetModuleRows() int {
	if c.ModuleRows == nil {
		return 1
	}
	return *c.ModuleRows
}

// GetModuleCols returns the module_cols value or the default.
func (c *PipelineConfig) GetModuleCols() int {
	if c.ModuleCols == nil {
		return 1
	}
	return *c.ModuleCols
}

// GetIgnoreTileEdge returns the ignore_tile_edge value or the default.
func (c *PipelineConfig) GetIgnoreTileEdge() bool {
	if c.IgnoreTileEdge == nil {
		return true
	}
	return *c.IgnoreTileEdge
}

// GetWorkers returns the worker pool size, resolving 0 to the CPU count.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetMovingAverageWindow returns the moving_average_window value or the default.
func (c *PipelineConfig) GetMovingAverageWindow() int {
	if c.MovingAverageWindow == nil {
		return 1
	}
	return *c.MovingAverageWindow
}

// GetThresholdMask returns the (lower, upper) threshold mask range. An
// omitted bound is infinite.
func (c *PipelineConfig) GetThresholdMask() (lower, upper float64) {
	lower, upper = math.Inf(-1), math.Inf(1)
	if c.ThresholdMaskLower != nil {
		lower = *c.ThresholdMaskLower
	}
	if c.ThresholdMaskUpper != nil {
		upper = *c.ThresholdMaskUpper
	}
	return lower, upper
}

// GetEdgeKernelSize returns the edge_kernel_size value or the default.
func (c *PipelineConfig) GetEdgeKernelSize() int {
	if c.EdgeKernelSize == nil {
		return 5
	}
	return *c.EdgeKernelSize
}

// GetEdgeSigma returns the edge_sigma value or the default.
func (c *PipelineConfig) GetEdgeSigma() float64 {
	if c.EdgeSigma == nil {
		return 1.0
	}
	return *c.EdgeSigma
}

// GetEdgeThresholdLow returns the edge_threshold_low value or the default.
func (c *PipelineConfig) GetEdgeThresholdLow() float64 {
	if c.EdgeThresholdLow == nil {
		return 50
	}
	return *c.EdgeThresholdLow
}

// GetEdgeThresholdHigh returns the edge_threshold_high value or the default.
func (c *PipelineConfig) GetEdgeThresholdHigh() float64 {
	if c.EdgeThresholdHigh == nil {
		return 100
	}
	return *c.EdgeThresholdHigh
}

// GetFOMHistory returns the fom_history value or the default.
func (c *PipelineConfig) GetFOMHistory() int {
	if c.FOMHistory == nil {
		return 600
	}
	return *c.FOMHistory
}

// GetDatabasePath returns the database_path value or the default.
func (c *PipelineConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "foam.db"
	}
	return *c.DatabasePath
}
