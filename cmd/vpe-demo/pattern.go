package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/fogleman/gg"
	"github.com/opd-ai/vpe/algorithm"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// barColors are the classic SMPTE-style bars drawn across the top of the pattern.
var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// PatternSource plays the role of a decoder: it renders a moving test pattern
// and queues it into an input surface at a fixed frame rate.
type PatternSource struct {
	width   int
	height  int
	fps     float64
	frames  int
	limiter *rate.Limiter
	canvas  *image.RGBA
	dc      *gg.Context

	queued  atomic.Int64
	dropped atomic.Int64
}

// NewPatternSource creates a source for width x height frames. A frames value
// of zero means the source runs until its context is cancelled.
func NewPatternSource(width, height int, fps float64, frames int) (*PatternSource, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("pattern size %dx%d must be positive and even", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("pattern fps %v must be positive", fps)
	}
	if frames < 0 {
		return nil, fmt.Errorf("pattern frame count %d is negative", frames)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	return &PatternSource{
		width:   width,
		height:  height,
		fps:     fps,
		frames:  frames,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		canvas:  canvas,
		dc:      gg.NewContextForRGBA(canvas),
	}, nil
}

// Render draws frame n into the source canvas and returns it. The canvas is
// reused across calls.
func (p *PatternSource) Render(n int) *image.RGBA {
	dc := p.dc
	w, h := float64(p.width), float64(p.height)

	dc.SetRGB(0.1, 0.1, 0.12)
	dc.Clear()

	barHeight := h * 2 / 3
	barWidth := w / float64(len(barColors))
	for i, c := range barColors {
		dc.SetColor(c)
		dc.DrawRectangle(float64(i)*barWidth, 0, barWidth+1, barHeight)
		dc.Fill()
	}

	// Luma ramp along the bottom
	steps := 16
	stepWidth := w / float64(steps)
	for i := 0; i < steps; i++ {
		v := float64(i) / float64(steps-1)
		dc.SetRGB(v, v, v)
		dc.DrawRectangle(float64(i)*stepWidth, barHeight, stepWidth+1, h-barHeight)
		dc.Fill()
	}

	// A ball bouncing across the bars makes motion visible
	phase := float64(n) / p.fps
	radius := math.Max(2, h/10)
	x := radius + (w-2*radius)*(0.5+0.5*math.Sin(phase*math.Pi))
	y := radius + (barHeight-2*radius)*(0.5+0.5*math.Cos(phase*math.Pi*0.7))
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(x, y, radius)
	dc.Fill()

	if h >= 32 {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(fmt.Sprintf("%06d", n), w-4, barHeight-4, 1, 0)
	}

	return p.canvas
}

// Timestamp returns the presentation time of frame n in microseconds.
func (p *PatternSource) Timestamp(n int) int64 {
	return int64(float64(n) * 1e6 / p.fps)
}

// Queued returns how many frames reached the input surface.
func (p *PatternSource) Queued() int64 {
	return p.queued.Load()
}

// Dropped returns how many frames were skipped because the surface had no free buffer.
func (p *PatternSource) Dropped() int64 {
	return p.dropped.Load()
}

// Run renders and queues frames into input until the frame budget is spent
// or ctx is cancelled. A full input surface drops the frame instead of
// stalling the clock.
func (p *PatternSource) Run(ctx context.Context, input surface.ProducerSurface) error {
	cfg := surface.BufferRequestConfig{
		Width:      p.width,
		Height:     p.height,
		Format:     surface.PixelFormatI420,
		ColorSpace: surface.ColorSpaceBT709,
		Usage:      surface.UsageCPUWrite,
	}

	for n := 0; p.frames == 0 || n < p.frames; n++ {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		buf, err := input.RequestBuffer(cfg)
		if errors.Is(err, surface.ErrNoBuffer) {
			p.dropped.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "PatternSource.Run",
				"frame":    n,
			}).Debug("Input surface full, dropping frame")
			continue
		}
		if err != nil {
			return fmt.Errorf("request input buffer: %w", err)
		}

		if err := algorithm.RGBAToI420(p.Render(n), buf); err != nil {
			_ = input.CancelBuffer(buf)
			return fmt.Errorf("convert frame %d: %w", n, err)
		}
		if err := input.FlushBuffer(buf, surface.FlushConfig{
			Timestamp: p.Timestamp(n),
			Damage:    surface.Rect{W: p.width, H: p.height},
		}); err != nil {
			return fmt.Errorf("queue frame %d: %w", n, err)
		}
		p.queued.Add(1)
	}

	logrus.WithFields(logrus.Fields{
		"function": "PatternSource.Run",
		"queued":   p.queued.Load(),
		"dropped":  p.dropped.Load(),
	}).Info("Pattern source finished")
	return nil
}
