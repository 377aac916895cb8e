package algorithm

import (
	"fmt"
	"math"
)

// Effect modifies a frame in place.
type Effect interface {
	Apply(frame *VideoFrame) error
	// Name returns the effect name for logs
	Name() string
}

// EffectChain applies effects in order.
type EffectChain struct {
	effects []Effect
}

// NewEffectChain creates a chain from the given effects.
func NewEffectChain(effects ...Effect) *EffectChain {
	return &EffectChain{effects: effects}
}

// Add appends an effect to the chain.
func (ec *EffectChain) Add(effect Effect) {
	ec.effects = append(ec.effects, effect)
}

// Len returns the number of effects in the chain.
func (ec *EffectChain) Len() int {
	return len(ec.effects)
}

// Apply runs every effect on frame. The first failure stops the chain.
func (ec *EffectChain) Apply(frame *VideoFrame) error {
	if frame == nil {
		return ErrNilFrame
	}
	for i, effect := range ec.effects {
		if err := effect.Apply(frame); err != nil {
			return fmt.Errorf("effect %d (%s): %w", i, effect.Name(), err)
		}
	}
	return nil
}

// SharpenEffect applies a 3x3 unsharp kernel to the luma plane.
type SharpenEffect struct {
	strength float64 // 0.0 = no effect, 2.0 = strong
	compute  *ComputeContext
	scratch  []byte
}

// NewSharpenEffect creates a sharpening effect. strength is clamped to [0, 2].
func NewSharpenEffect(strength float64, compute *ComputeContext) *SharpenEffect {
	if strength < 0 {
		strength = 0
	}
	if strength > 2 {
		strength = 2
	}
	return &SharpenEffect{strength: strength, compute: compute}
}

// Strength returns the clamped kernel strength.
func (se *SharpenEffect) Strength() float64 {
	return se.strength
}

// Apply sharpens the interior of the Y plane. Border pixels are left unchanged.
func (se *SharpenEffect) Apply(frame *VideoFrame) error {
	if frame == nil {
		return ErrNilFrame
	}
	if se.strength == 0 || frame.Width < 3 || frame.Height < 3 {
		return nil
	}

	width, height, stride := frame.Width, frame.Height, frame.YStride
	if cap(se.scratch) < len(frame.Y) {
		se.scratch = make([]byte, len(frame.Y))
	}
	temp := se.scratch[:len(frame.Y)]
	copy(temp, frame.Y)

	rows := func(start, end int) {
		if start < 1 {
			start = 1
		}
		if end > height-1 {
			end = height - 1
		}
		for y := start; y < end; y++ {
			for x := 1; x < width-1; x++ {
				idx := y*stride + x
				sum := float64(temp[idx]) * (1 + 4*se.strength)
				sum -= float64(temp[idx-stride]) * se.strength
				sum -= float64(temp[idx+stride]) * se.strength
				sum -= float64(temp[idx-1]) * se.strength
				sum -= float64(temp[idx+1]) * se.strength
				frame.Y[idx] = clampByte(sum)
			}
		}
	}

	if se.compute == nil {
		rows(0, height)
	} else {
		se.compute.ParallelRows(height, rows)
	}
	return nil
}

// Name returns the effect name.
func (se *SharpenEffect) Name() string {
	return fmt.Sprintf("Sharpen(%.2f)", se.strength)
}

// LumaCurveEffect maps every luma sample through a lookup table.
type LumaCurveEffect struct {
	lut [256]byte
}

// NewLumaCurveEffect creates an identity curve.
func NewLumaCurveEffect() *LumaCurveEffect {
	e := &LumaCurveEffect{}
	for i := range e.lut {
		e.lut[i] = byte(i)
	}
	return e
}

// SetCurve maps the input range [lo, hi] onto [outLo, outHi] with the given
// gamma. Values outside [lo, hi] are clamped. A collapsed range yields the
// identity curve.
func (le *LumaCurveEffect) SetCurve(lo, hi, outLo, outHi int, gamma float64) {
	if hi <= lo || gamma <= 0 {
		for i := range le.lut {
			le.lut[i] = byte(i)
		}
		return
	}
	span := float64(hi - lo)
	outSpan := float64(outHi - outLo)
	for i := range le.lut {
		t := (float64(i) - float64(lo)) / span
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		le.lut[i] = clampByte(float64(outLo) + math.Pow(t, gamma)*outSpan)
	}
}

// Map returns the curve output for one luma value.
func (le *LumaCurveEffect) Map(v byte) byte {
	return le.lut[v]
}

// Apply remaps the Y plane.
func (le *LumaCurveEffect) Apply(frame *VideoFrame) error {
	if frame == nil {
		return ErrNilFrame
	}
	for y := 0; y < frame.Height; y++ {
		row := frame.Y[y*frame.YStride : y*frame.YStride+frame.Width]
		for x, v := range row {
			row[x] = le.lut[v]
		}
	}
	return nil
}

// Name returns the effect name.
func (le *LumaCurveEffect) Name() string {
	return "LumaCurve"
}

// SaturationEffect scales chroma around the neutral value.
type SaturationEffect struct {
	factor float64 // 0.0 = grayscale, 1.0 = unchanged
}

// NewSaturationEffect creates a saturation effect. factor is clamped to [0, 3].
func NewSaturationEffect(factor float64) *SaturationEffect {
	if factor < 0 {
		factor = 0
	}
	if factor > 3 {
		factor = 3
	}
	return &SaturationEffect{factor: factor}
}

// Apply scales both chroma planes.
func (se *SaturationEffect) Apply(frame *VideoFrame) error {
	if frame == nil {
		return ErrNilFrame
	}
	if se.factor == 1 {
		return nil
	}
	const neutral = 128.0
	uvWidth, uvHeight := frame.Width/2, frame.Height/2
	scale := func(plane []byte, stride int) {
		for y := 0; y < uvHeight; y++ {
			row := plane[y*stride : y*stride+uvWidth]
			for x, v := range row {
				row[x] = clampByte(neutral + (float64(v)-neutral)*se.factor)
			}
		}
	}
	scale(frame.U, frame.UStride)
	scale(frame.V, frame.VStride)
	return nil
}

// Name returns the effect name.
func (se *SaturationEffect) Name() string {
	return fmt.Sprintf("Saturation(%.2f)", se.factor)
}
