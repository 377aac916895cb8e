package algorithm

import (
	"fmt"
	"sync"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// Limited-range luma bounds the tone curve expands towards.
const (
	lumaBlack = 16
	lumaWhite = 235
)

// LumaStats summarizes the luma histogram of one frame.
type LumaStats struct {
	Low  int     // 1st percentile
	High int     // 99th percentile
	Mean float64 // average luma
}

// AIHDREnhancer expands the luma range of each frame with a curve derived
// from the frame's own histogram.
type AIHDREnhancer struct {
	Base
	curve *LumaCurveEffect
	chain *EffectChain

	last LumaStats
}

var _ interfaces.Algorithm = (*AIHDREnhancer)(nil)

// NewAIHDREnhancer creates the adaptive HDR feature.
func NewAIHDREnhancer(workers int) *AIHDREnhancer {
	h := &AIHDREnhancer{curve: NewLumaCurveEffect()}
	h.chain = NewEffectChain(h.curve, NewSaturationEffect(1.1))
	h.init(interfaces.EffectAIHDR.String(), interfaces.EffectAIHDR, workers)
	return h
}

// LastStats returns the statistics of the most recently processed frame.
func (h *AIHDREnhancer) LastStats() LumaStats {
	return h.last
}

// Process fits src to dst, then applies the adaptive tone curve.
func (h *AIHDREnhancer) Process(src, dst *surface.Buffer) error {
	compute, scaler, err := h.tools()
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
	if err := scaler.ScaleInto(in, out); err != nil {
		return fmt.Errorf("scale %dx%d to %dx%d: %w", in.Width, in.Height, out.Width, out.Height, err)
	}

	stats := MeasureLuma(out, compute)
	h.curve.SetCurve(stats.Low, stats.High, lumaBlack, lumaWhite, toneGamma(stats.Mean))
	if err := h.chain.Apply(out); err != nil {
		return err
	}
	dst.ColorSpace = src.ColorSpace
	h.last = stats

	logrus.WithFields(logrus.Fields{
		"function": "AIHDREnhancer.Process",
		"dst_seq":  dst.SeqNum(),
		"low":      stats.Low,
		"high":     stats.High,
		"mean":     stats.Mean,
	}).Debug("Tone curve applied")
	return nil
}

// toneGamma lifts dark frames and compresses bright ones.
func toneGamma(mean float64) float64 {
	switch {
	case mean < 90:
		return 0.8
	case mean > 170:
		return 1.2
	default:
		return 1.0
	}
}

// MeasureLuma builds the luma histogram of frame and derives its statistics.
// A nil compute context measures on the caller's goroutine.
func MeasureLuma(frame *VideoFrame, compute *ComputeContext) LumaStats {
	var (
		mu   sync.Mutex
		hist [256]int
	)
	rows := func(start, end int) {
		var local [256]int
		for y := start; y < end; y++ {
			for _, v := range frame.Y[y*frame.YStride : y*frame.YStride+frame.Width] {
				local[v]++
			}
		}
		mu.Lock()
		for i, n := range local {
			hist[i] += n
		}
		mu.Unlock()
	}
	if compute == nil {
		rows(0, frame.Height)
	} else {
		compute.ParallelRows(frame.Height, rows)
	}

	total := frame.Width * frame.Height
	if total == 0 {
		return LumaStats{}
	}
	lowCut := total / 100
	highCut := total - total/100

	stats := LumaStats{Low: -1}
	seen, sum := 0, 0
	highSet := false
	for v, n := range hist {
		if n == 0 {
			continue
		}
		seen += n
		sum += v * n
		if stats.Low < 0 && seen > lowCut {
			stats.Low = v
		}
		if !highSet && seen >= highCut {
			stats.High = v
			highSet = true
		}
	}
	stats.Mean = float64(sum) / float64(total)
	return stats
}
