package vpe

import (
	"fmt"
	"sync"

	"github.com/opd-ai/vpe/engine"
	"github.com/opd-ai/vpe/factory"
	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// Video is a post-processing instance bound to one feature.
//
// Video wraps an initialized engine. After Release every method returns an
// error wrapping engine.ErrInvalidOperation.
type Video struct {
	mu   sync.RWMutex
	impl *engine.Engine
}

// Create builds and initializes a Video for the named feature using a
// factory configured from the environment.
//
// Feature names are "detail-enhancement", "aihdr" and "colorspace-conversion".
func Create(feature string, opts ...factory.ConfigOption) (*Video, error) {
	return CreateWithFactory(factory.NewVideoFactory(), feature, opts...)
}

// CreateWithFactory is like Create with an explicit factory.
func CreateWithFactory(f *factory.VideoFactory, feature string, opts ...factory.ConfigOption) (*Video, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil factory", engine.ErrInvalidValue)
	}
	effect, ok := interfaces.ParseEffectType(feature)
	if !ok || effect == interfaces.EffectNone {
		return nil, fmt.Errorf("%w: unknown feature %q", engine.ErrInvalidValue, feature)
	}

	eng, err := f.CreateVideo(effect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", feature, err)
	}
	return NewVideo(eng)
}

// NewVideo initializes eng and wraps it.
func NewVideo(eng *engine.Engine) (*Video, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: nil engine", engine.ErrInvalidValue)
	}
	if err := eng.Initialize(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewVideo",
		"feature":  eng.Feature(),
	}).Info("Video created")

	return &Video{impl: eng}, nil
}

func (v *Video) current() (*engine.Engine, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.impl == nil {
		return nil, fmt.Errorf("%w: video has been released", engine.ErrInvalidOperation)
	}
	return v.impl, nil
}

// Release stops processing and frees every buffer and resource. It is idempotent.
func (v *Video) Release() error {
	v.mu.Lock()
	impl := v.impl
	v.impl = nil
	v.mu.Unlock()

	if impl == nil {
		return nil
	}
	return impl.Deinitialize()
}

// Feature returns the feature name, or an empty string after Release.
func (v *Video) Feature() string {
	eng, err := v.current()
	if err != nil {
		return ""
	}
	return eng.Feature()
}

// RegisterCallback installs the event sink. Only allowed while idle.
func (v *Video) RegisterCallback(cb interfaces.Callback) error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.RegisterCallback(cb)
}

// SetOutputSurface sets or replaces the display surface.
func (v *Video) SetOutputSurface(s surface.ProducerSurface) error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.SetOutputSurface(s)
}

// GetInputSurface returns the surface the decoder renders into.
func (v *Video) GetInputSurface() (surface.ProducerSurface, error) {
	eng, err := v.current()
	if err != nil {
		return nil, err
	}
	return eng.GetInputSurface()
}

// Start begins processing.
func (v *Video) Start() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.Start()
}

// Stop requests the worker to stop after the current pass.
func (v *Video) Stop() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.Stop()
}

// Flush drops or recycles in-flight work, depending on whether processing is enabled.
func (v *Video) Flush() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.Flush()
}

// Enable turns processing on.
func (v *Video) Enable() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.Enable()
}

// Disable switches to bypass.
func (v *Video) Disable() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.Disable()
}

// IsEnabled reports whether processing is enabled.
func (v *Video) IsEnabled() bool {
	eng, err := v.current()
	if err != nil {
		return false
	}
	return eng.IsEnabled()
}

// NotifyEos signals end of stream after the last queued frame.
func (v *Video) NotifyEos() error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.NotifyEos()
}

// ReleaseOutputBuffer returns an available output buffer, rendering it when render is true.
func (v *Video) ReleaseOutputBuffer(index uint32, render bool) error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.ReleaseOutputBuffer(index, render)
}

// RenderOutputBufferAtTime renders an available output buffer with an explicit timestamp.
func (v *Video) RenderOutputBufferAtTime(index uint32, timestamp int64) error {
	eng, err := v.current()
	if err != nil {
		return err
	}
	return eng.RenderOutputBufferAtTime(index, timestamp)
}

// Stats returns a snapshot of the engine queues and counters.
func (v *Video) Stats() (engine.Stats, error) {
	eng, err := v.current()
	if err != nil {
		return engine.Stats{}, err
	}
	return eng.Stats(), nil
}
