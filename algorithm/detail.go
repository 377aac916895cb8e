package algorithm

import (
	"fmt"
	"time"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// detailStrength maps detail levels to sharpen kernel strength.
var detailStrength = map[int]float64{
	interfaces.DetailLevelNone:   0,
	interfaces.DetailLevelLow:    0.25,
	interfaces.DetailLevelMedium: 0.5,
	interfaces.DetailLevelHigh:   1.0,
}

// DetailEnhancer scales frames to the output size and sharpens luma.
type DetailEnhancer struct {
	Base
	level   int
	sharpen *SharpenEffect
}

var _ interfaces.Algorithm = (*DetailEnhancer)(nil)

// NewDetailEnhancer creates a detail enhancement feature for the given level.
// workers sizes the compute context; zero means one worker per CPU.
func NewDetailEnhancer(level, workers int) (*DetailEnhancer, error) {
	if _, ok := detailStrength[level]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	d := &DetailEnhancer{
		level:   level,
		sharpen: NewSharpenEffect(detailStrength[level], nil),
	}
	d.init(interfaces.EffectDetailEnhancement.String(), interfaces.EffectDetailEnhancement, workers)
	return d, nil
}

// Level returns the configured detail level.
func (d *DetailEnhancer) Level() int {
	return d.level
}

// Process scales src into dst and sharpens the result.
func (d *DetailEnhancer) Process(src, dst *surface.Buffer) error {
	compute, scaler, err := d.tools()
	if err != nil {
		return err
	}
	in, err := inputFrame(src)
	if err != nil {
		return err
	}
	if dst == nil {
		return ErrNilFrame
	}
	out, err := FrameFromBuffer(dst)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := scaler.ScaleInto(in, out); err != nil {
		return fmt.Errorf("scale %dx%d to %dx%d: %w", in.Width, in.Height, out.Width, out.Height, err)
	}
	d.sharpen.compute = compute
	if err := d.sharpen.Apply(out); err != nil {
		return err
	}
	dst.ColorSpace = src.ColorSpace

	logrus.WithFields(logrus.Fields{
		"function": "DetailEnhancer.Process",
		"src_seq":  src.SeqNum(),
		"dst_seq":  dst.SeqNum(),
		"level":    d.level,
		"scaled":   IsScalingRequired(in.Width, in.Height, out.Width, out.Height),
		"duration": time.Since(start),
	}).Debug("Frame enhanced")
	return nil
}
