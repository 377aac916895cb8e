package algorithm

import (
	"fmt"
	"sync"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// Base carries the state and default hooks shared by every feature.
//
// Embedders supply Process. Base negotiates output buffers at the output
// surface's default geometry in the feature's output format, and follows the
// input buffer when the engine bypasses processing.
type Base struct {
	name    string
	effect  interfaces.EffectType
	workers int

	// output format and color space requested while processing is enabled
	outputFormat     surface.PixelFormat
	outputColorSpace surface.ColorSpace

	mu      sync.Mutex
	compute *ComputeContext
	scaler  *Scaler
	staging *VideoFrame
}

func (b *Base) init(name string, effect interfaces.EffectType, workers int) {
	b.name = name
	b.effect = effect
	b.workers = workers
	b.outputFormat = surface.PixelFormatI420
}

// Name returns the feature name used in logs and metrics.
func (b *Base) Name() string {
	return b.name
}

// EffectType returns the effect reported while processing is enabled.
func (b *Base) EffectType() interfaces.EffectType {
	return b.effect
}

// OnInitialize starts the compute context.
func (b *Base) OnInitialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.compute != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, b.name)
	}
	b.compute = NewComputeContext(b.workers)
	b.scaler = NewScaler(b.compute)

	logrus.WithFields(logrus.Fields{
		"function": "Base.OnInitialize",
		"feature":  b.name,
		"workers":  b.compute.Workers(),
	}).Info("Feature initialized")
	return nil
}

// OnDeinitialize closes the compute context. It is idempotent.
func (b *Base) OnDeinitialize() error {
	b.mu.Lock()
	compute := b.compute
	b.compute = nil
	b.scaler = nil
	b.staging = nil
	b.mu.Unlock()

	if compute != nil {
		compute.Close()
		logrus.WithFields(logrus.Fields{
			"function": "Base.OnDeinitialize",
			"feature":  b.name,
		}).Info("Feature deinitialized")
	}
	return nil
}

// IsProducerSurfaceValid accepts any producer endpoint.
func (b *Base) IsProducerSurfaceValid(s surface.ProducerSurface) bool {
	return s != nil && !s.IsConsumer()
}

// UpdateRequestCfg requests buffers at the surface's default size in the
// feature's output format.
func (b *Base) UpdateRequestCfg(s surface.ProducerSurface, cfg *surface.BufferRequestConfig) error {
	if s == nil || cfg == nil {
		return fmt.Errorf("%w: nil surface or config", ErrNilFrame)
	}
	def := s.DefaultRequestConfig()
	if def.Width > 0 && def.Height > 0 {
		cfg.Width = def.Width
		cfg.Height = def.Height
	}
	if def.StrideAlignment > 0 {
		cfg.StrideAlignment = def.StrideAlignment
	}
	cfg.Format = b.outputFormat
	if b.outputColorSpace != surface.ColorSpaceUnknown {
		cfg.ColorSpace = b.outputColorSpace
	}
	return nil
}

// UpdateRequestCfgFromBuffer mirrors the input buffer geometry and format.
func (b *Base) UpdateRequestCfgFromBuffer(buf *surface.Buffer, cfg *surface.BufferRequestConfig) error {
	if buf == nil || cfg == nil {
		return fmt.Errorf("%w: nil buffer or config", ErrNilFrame)
	}
	cfg.Width = buf.Width
	cfg.Height = buf.Height
	cfg.Format = buf.Format
	cfg.ColorSpace = buf.ColorSpace
	return nil
}

// tools returns the compute context and scaler, failing outside the
// initialized window.
func (b *Base) tools() (*ComputeContext, *Scaler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.compute == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotInitialized, b.name)
	}
	return b.compute, b.scaler, nil
}

// fit returns src resized to width x height. When no scaling is needed src
// itself is returned; otherwise a reusable staging frame holds the result.
func (b *Base) fit(scaler *Scaler, src *VideoFrame, width, height int) (*VideoFrame, error) {
	if !IsScalingRequired(src.Width, src.Height, width, height) {
		return src, nil
	}

	b.mu.Lock()
	staging := b.staging
	if staging == nil || staging.Width != width || staging.Height != height {
		var err error
		staging, err = NewVideoFrame(width, height)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.staging = staging
	}
	b.mu.Unlock()

	if err := scaler.ScaleInto(src, staging); err != nil {
		return nil, err
	}
	return staging, nil
}

// inputFrame validates that buf is I420 and returns its plane view.
func inputFrame(buf *surface.Buffer) (*VideoFrame, error) {
	if buf == nil {
		return nil, ErrNilFrame
	}
	if buf.Format != surface.PixelFormatI420 {
		return nil, fmt.Errorf("%w: input %s", ErrFormatMismatch, buf.Format)
	}
	return FrameFromBuffer(buf)
}
