package factory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/vpe/algorithm"
	"github.com/opd-ai/vpe/engine"
	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
	vpetest "github.com/opd-ai/vpe/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinTriggerTimeoutMs is the minimum allowed worker wake-up interval in milliseconds.
	MinTriggerTimeoutMs = 10
	// MaxTriggerTimeoutMs is the maximum allowed worker wake-up interval in milliseconds (10 minutes).
	MaxTriggerTimeoutMs = 600000
	// MaxComputeWorkers is the largest compute pool accepted from the environment.
	MaxComputeWorkers = 256
)

// testTriggerTimeout keeps simulated engines responsive in tests.
const testTriggerTimeout = time.Second

// ErrUnknownEffect is returned for effect types without a feature.
var ErrUnknownEffect = errors.New("no feature for effect")

// VideoFactory creates engines based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type VideoFactory struct {
	mu            sync.RWMutex
	defaultConfig interfaces.VideoConfig
	useSimulation bool

	conversionTarget surface.ColorSpace
	conversionFormat surface.PixelFormat
}

// ConfigOption customizes the configuration of a single engine.
type ConfigOption func(*interfaces.VideoConfig)

// NewVideoFactory creates a factory with the default configuration and
// environment overrides applied.
func NewVideoFactory() *VideoFactory {
	f := &VideoFactory{
		defaultConfig:    interfaces.DefaultVideoConfig(),
		conversionTarget: surface.ColorSpaceBT709,
		conversionFormat: surface.PixelFormatI420,
	}
	f.useSimulation = parseSimulationSetting(false)
	applyEnvironmentOverrides(&f.defaultConfig)
	logConfigurationInfo(f.defaultConfig, f.useSimulation)
	return f
}

// applyEnvironmentOverrides updates configuration from VPE_* environment variables.
func applyEnvironmentOverrides(config *interfaces.VideoConfig) {
	parseQueueSizeSetting(config)
	parseTriggerTimeoutSetting(config)
	parseStartEnabledSetting(config)
	parseDetailLevelSetting(config)
	parseComputeWorkersSetting(config)
}

// parseBoolEnv reads a boolean variable. It returns fallback when the
// variable is unset or malformed.
func parseBoolEnv(function, name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": fallback,
		}).Warn("Failed to parse boolean environment variable, using default")
		return fallback
	}
	return value
}

// parseIntEnv reads an integer variable bounded by [lo, hi]. ok is false
// when the variable is unset, malformed or out of range.
func parseIntEnv(function, name string, lo, hi, current int) (value int, ok bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return current, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse integer environment variable, using default")
		return current, false
	}
	if value < lo || value > hi {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"env_var":     name,
			"value":       value,
			"min":         lo,
			"max":         hi,
			"using_value": current,
		}).Warn("Environment variable value out of bounds, using default")
		return current, false
	}
	return value, true
}

// parseSimulationSetting reads VPE_USE_SIMULATION.
func parseSimulationSetting(current bool) bool {
	return parseBoolEnv("parseSimulationSetting", "VPE_USE_SIMULATION", current)
}

// parseQueueSizeSetting updates OutputQueueSize from VPE_OUTPUT_QUEUE_SIZE.
func parseQueueSizeSetting(config *interfaces.VideoConfig) {
	if size, ok := parseIntEnv("parseQueueSizeSetting", "VPE_OUTPUT_QUEUE_SIZE", 1, limits.MaxQueueSize, config.OutputQueueSize); ok {
		config.OutputQueueSize = size
	}
}

// parseTriggerTimeoutSetting updates TriggerTimeout from VPE_TRIGGER_TIMEOUT_MS.
func parseTriggerTimeoutSetting(config *interfaces.VideoConfig) {
	current := int(config.TriggerTimeout / time.Millisecond)
	if ms, ok := parseIntEnv("parseTriggerTimeoutSetting", "VPE_TRIGGER_TIMEOUT_MS", MinTriggerTimeoutMs, MaxTriggerTimeoutMs, current); ok {
		config.TriggerTimeout = time.Duration(ms) * time.Millisecond
	}
}

// parseStartEnabledSetting updates StartEnabled from VPE_START_ENABLED.
func parseStartEnabledSetting(config *interfaces.VideoConfig) {
	config.StartEnabled = parseBoolEnv("parseStartEnabledSetting", "VPE_START_ENABLED", config.StartEnabled)
}

// parseDetailLevelSetting updates DetailLevel from VPE_DETAIL_LEVEL.
func parseDetailLevelSetting(config *interfaces.VideoConfig) {
	if level, ok := parseIntEnv("parseDetailLevelSetting", "VPE_DETAIL_LEVEL", interfaces.DetailLevelNone, interfaces.DetailLevelHigh, config.DetailLevel); ok {
		config.DetailLevel = level
	}
}

// parseComputeWorkersSetting updates ComputeWorkers from VPE_COMPUTE_WORKERS.
func parseComputeWorkersSetting(config *interfaces.VideoConfig) {
	if workers, ok := parseIntEnv("parseComputeWorkersSetting", "VPE_COMPUTE_WORKERS", 0, MaxComputeWorkers, config.ComputeWorkers); ok {
		config.ComputeWorkers = workers
	}
}

// logConfigurationInfo logs the final configuration settings.
func logConfigurationInfo(config interfaces.VideoConfig, simulation bool) {
	logrus.WithFields(logrus.Fields{
		"function":          "NewVideoFactory",
		"use_simulation":    simulation,
		"output_queue_size": config.OutputQueueSize,
		"trigger_timeout":   config.TriggerTimeout,
		"start_enabled":     config.StartEnabled,
		"detail_level":      config.DetailLevel,
		"compute_workers":   config.ComputeWorkers,
	}).Info("Created video factory with configuration")
}

// WithOutputQueueSize sets the output surface queue depth.
func WithOutputQueueSize(size int) ConfigOption {
	return func(c *interfaces.VideoConfig) {
		c.OutputQueueSize = size
	}
}

// WithTriggerTimeout sets the worker idle wake-up interval.
func WithTriggerTimeout(timeout time.Duration) ConfigOption {
	return func(c *interfaces.VideoConfig) {
		c.TriggerTimeout = timeout
	}
}

// WithStartEnabled selects processing or bypass at start.
func WithStartEnabled(enabled bool) ConfigOption {
	return func(c *interfaces.VideoConfig) {
		c.StartEnabled = enabled
	}
}

// WithDetailLevel sets the detail enhancement level.
func WithDetailLevel(level int) ConfigOption {
	return func(c *interfaces.VideoConfig) {
		c.DetailLevel = level
	}
}

// WithComputeWorkers sets the feature compute pool size.
func WithComputeWorkers(workers int) ConfigOption {
	return func(c *interfaces.VideoConfig) {
		c.ComputeWorkers = workers
	}
}

// SetConversion selects the output of the color space conversion feature.
func (f *VideoFactory) SetConversion(target surface.ColorSpace, format surface.PixelFormat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversionTarget = target
	f.conversionFormat = format
}

// CreateAlgorithm builds the feature for effect using cfg.
func (f *VideoFactory) CreateAlgorithm(effect interfaces.EffectType, cfg interfaces.VideoConfig) (interfaces.Algorithm, error) {
	f.mu.RLock()
	simulation := f.useSimulation
	target, format := f.conversionTarget, f.conversionFormat
	f.mu.RUnlock()

	if simulation {
		sim := vpetest.NewSimulatedAlgorithm("sim-" + effect.String())
		sim.SetEffectType(effect)
		return sim, nil
	}

	switch effect {
	case interfaces.EffectDetailEnhancement:
		d, err := algorithm.NewDetailEnhancer(cfg.DetailLevel, cfg.ComputeWorkers)
		if err != nil {
			return nil, err
		}
		return d, nil
	case interfaces.EffectAIHDR:
		return algorithm.NewAIHDREnhancer(cfg.ComputeWorkers), nil
	case interfaces.EffectColorSpaceConversion:
		c, err := algorithm.NewColorSpaceConverter(target, format, cfg.ComputeWorkers)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, effect)
	}
}

// CreateVideo creates an engine for effect with the factory configuration
// and the given overrides.
func (f *VideoFactory) CreateVideo(effect interfaces.EffectType, opts ...ConfigOption) (*engine.Engine, error) {
	cfg := f.GetCurrentConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	algo, err := f.CreateAlgorithm(effect, cfg)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "CreateVideo",
		"effect":     effect.String(),
		"feature":    algo.Name(),
		"simulation": f.IsUsingSimulation(),
	}).Info("Creating video engine")

	return engine.New(algo, engine.WithConfig(cfg))
}

// CreateSimulationForTesting creates an engine driven by a simulated
// algorithm. The default test configuration uses a one second trigger
// timeout and a single compute worker.
func (f *VideoFactory) CreateSimulationForTesting(opts ...ConfigOption) (*engine.Engine, *vpetest.SimulatedAlgorithm, error) {
	cfg := interfaces.DefaultVideoConfig()
	cfg.TriggerTimeout = testTriggerTimeout
	cfg.ComputeWorkers = 1
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sim := vpetest.NewSimulatedAlgorithm("sim-test")

	logrus.WithFields(logrus.Fields{
		"function":          "CreateSimulationForTesting",
		"trigger_timeout":   cfg.TriggerTimeout,
		"output_queue_size": cfg.OutputQueueSize,
	}).Info("Creating simulation engine for testing")

	eng, err := engine.New(sim, engine.WithConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return eng, sim, nil
}

// SwitchToSimulation makes subsequent engines use the simulated algorithm.
func (f *VideoFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.useSimulation,
	}).Info("Switching factory to simulation mode")
	f.useSimulation = true
}

// SwitchToReal makes subsequent engines use the real features.
func (f *VideoFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.useSimulation,
	}).Info("Switching factory to real mode")
	f.useSimulation = false
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *VideoFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.useSimulation
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *VideoFactory) GetCurrentConfig() interfaces.VideoConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig
}

// UpdateConfig replaces the factory's default configuration.
func (f *VideoFactory) UpdateConfig(config interfaces.VideoConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":         "UpdateConfig",
		"old_queue_size":   f.defaultConfig.OutputQueueSize,
		"new_queue_size":   config.OutputQueueSize,
		"old_detail_level": f.defaultConfig.DetailLevel,
		"new_detail_level": config.DetailLevel,
	}).Info("Updating factory configuration")

	f.defaultConfig = config
	return nil
}
