package testing

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// ErrSimulatedFailure is returned by scripted failures that carry no error of their own.
var ErrSimulatedFailure = errors.New("simulated process failure")

// ProcessRecord is one Process call seen by a SimulatedAlgorithm.
type ProcessRecord struct {
	SrcSeq uint32
	DstSeq uint32
	Err    error
}

// SimulatedAlgorithm implements interfaces.Algorithm for tests.
type SimulatedAlgorithm struct {
	mu sync.Mutex

	name         string
	effect       interfaces.EffectType
	outputFormat surface.PixelFormat
	surfaceValid bool
	initErr      error
	delay        time.Duration

	failures []error
	calls    []ProcessRecord
	inits    int
	deinits  int
}

// NewSimulatedAlgorithm creates a simulated algorithm that copies input to output.
func NewSimulatedAlgorithm(name string) *SimulatedAlgorithm {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedAlgorithm",
		"name":     name,
	}).Info("Creating simulated algorithm for testing")

	return &SimulatedAlgorithm{
		name:         name,
		effect:       interfaces.EffectDetailEnhancement,
		surfaceValid: true,
	}
}

// Name implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) Name() string {
	return s.name
}

// EffectType implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) EffectType() interfaces.EffectType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effect
}

// SetEffectType changes the reported effect.
func (s *SimulatedAlgorithm) SetEffectType(effect interfaces.EffectType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effect = effect
}

// SetOutputFormat makes UpdateRequestCfg request a fixed output format.
func (s *SimulatedAlgorithm) SetOutputFormat(format surface.PixelFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputFormat = format
}

// SetSurfaceValid controls IsProducerSurfaceValid.
func (s *SimulatedAlgorithm) SetSurfaceValid(valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaceValid = valid
}

// SetInitError makes the next OnInitialize fail.
func (s *SimulatedAlgorithm) SetInitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initErr = err
}

// SetProcessDelay makes every Process call sleep.
func (s *SimulatedAlgorithm) SetProcessDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailNext makes the next n Process calls fail with err, or with
// ErrSimulatedFailure when err is nil.
func (s *SimulatedAlgorithm) FailNext(n int, err error) {
	if err == nil {
		err = ErrSimulatedFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, err)
	}
}

// OnInitialize implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) OnInitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr != nil {
		err := s.initErr
		s.initErr = nil
		return err
	}
	s.inits++
	return nil
}

// OnDeinitialize implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) OnDeinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deinits++
	return nil
}

// Process implements interfaces.Algorithm by copying src into dst.
func (s *SimulatedAlgorithm) Process(src, dst *surface.Buffer) error {
	s.mu.Lock()
	delay := s.delay
	var err error
	if len(s.failures) > 0 {
		err = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.calls = append(s.calls, ProcessRecord{SrcSeq: src.SeqNum(), DstSeq: dst.SeqNum(), Err: err})
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedAlgorithm.Process",
			"src":      src.SeqNum(),
			"dst":      dst.SeqNum(),
			"error":    err.Error(),
		}).Debug("Simulating process failure")
		return err
	}

	copy(dst.Data, src.Data)
	return nil
}

// IsProducerSurfaceValid implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) IsProducerSurfaceValid(surface.ProducerSurface) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surfaceValid
}

// UpdateRequestCfg implements interfaces.Algorithm. Geometry comes from the
// surface default; the format from SetOutputFormat when set.
func (s *SimulatedAlgorithm) UpdateRequestCfg(ps surface.ProducerSurface, cfg *surface.BufferRequestConfig) error {
	def := ps.DefaultRequestConfig()
	cfg.Width = def.Width
	cfg.Height = def.Height
	cfg.Format = def.Format

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputFormat != surface.PixelFormatUnknown {
		cfg.Format = s.outputFormat
	}
	return nil
}

// UpdateRequestCfgFromBuffer implements interfaces.Algorithm.
func (s *SimulatedAlgorithm) UpdateRequestCfgFromBuffer(buf *surface.Buffer, cfg *surface.BufferRequestConfig) error {
	cfg.Width = buf.Width
	cfg.Height = buf.Height
	cfg.Format = buf.Format
	cfg.ColorSpace = buf.ColorSpace
	return nil
}

// ProcessCalls returns a copy of every recorded Process call.
func (s *SimulatedAlgorithm) ProcessCalls() []ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]ProcessRecord, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// ProcessCount returns the number of Process calls.
func (s *SimulatedAlgorithm) ProcessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Lifecycle returns how often OnInitialize and OnDeinitialize succeeded.
func (s *SimulatedAlgorithm) Lifecycle() (inits, deinits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits, s.deinits
}
