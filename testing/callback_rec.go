package testing

import (
	"sync"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
)

// AvailableRecord is one OnOutputBufferAvailable event.
type AvailableRecord struct {
	Index uint32
	Flag  surface.BufferFlag
}

// RecordingCallback implements interfaces.Callback and keeps every event.
type RecordingCallback struct {
	mu        sync.Mutex
	errors    []error
	states    []interfaces.AlgoState
	effects   []interfaces.EffectType
	formats   []surface.PixelFormat
	available []AvailableRecord
	hook      func(index uint32, flag surface.BufferFlag)
}

var _ interfaces.Callback = (*RecordingCallback)(nil)

// NewRecordingCallback creates an empty recorder.
func NewRecordingCallback() *RecordingCallback {
	return &RecordingCallback{}
}

// SetAvailableHook installs a function run after each available buffer is recorded.
func (r *RecordingCallback) SetAvailableHook(hook func(index uint32, flag surface.BufferFlag)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *RecordingCallback) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *RecordingCallback) OnState(state interfaces.AlgoState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *RecordingCallback) OnEffectChange(effect interfaces.EffectType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effect)
}

func (r *RecordingCallback) OnOutputFormatChanged(format surface.PixelFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, format)
}

func (r *RecordingCallback) OnOutputBufferAvailable(index uint32, flag surface.BufferFlag) {
	r.mu.Lock()
	r.available = append(r.available, AvailableRecord{Index: index, Flag: flag})
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(index, flag)
	}
}

// Errors returns the recorded errors in order.
func (r *RecordingCallback) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

// States returns the recorded states in order.
func (r *RecordingCallback) States() []interfaces.AlgoState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.AlgoState(nil), r.states...)
}

// HasState reports whether state was ever reported.
func (r *RecordingCallback) HasState(state interfaces.AlgoState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

// Effects returns the recorded effect changes in order.
func (r *RecordingCallback) Effects() []interfaces.EffectType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.EffectType(nil), r.effects...)
}

// Formats returns the recorded output format changes in order.
func (r *RecordingCallback) Formats() []surface.PixelFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]surface.PixelFormat(nil), r.formats...)
}

// Available returns the recorded available buffers in order.
func (r *RecordingCallback) Available() []AvailableRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AvailableRecord(nil), r.available...)
}

// AvailableCount returns the number of available buffer events.
func (r *RecordingCallback) AvailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.available)
}
