package main

import (
	"sync"

	"github.com/opd-ai/vpe/bufferqueue"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// DisplayStats summarizes what reached the display.
type DisplayStats struct {
	Frames        uint64 `json:"frames"`
	LastTimestamp int64  `json:"last_timestamp_us"`
	LastWidth     int    `json:"last_width"`
	LastHeight    int    `json:"last_height"`
	LastFormat    string `json:"last_format"`
	EOS           bool   `json:"eos"`
}

// Display stands in for a compositor. It owns the consumer end of the output
// queue and presents every frame by acquiring and immediately releasing it.
type Display struct {
	queue *bufferqueue.Queue

	mu    sync.Mutex
	stats DisplayStats
	eos   chan struct{}
}

// NewDisplay creates the output queue with the given window geometry and
// starts consuming from it.
func NewDisplay(width, height int, format surface.PixelFormat) (*Display, error) {
	d := &Display{
		queue: bufferqueue.New("vpe-demo-display", bufferqueue.WithDefaultRequestConfig(surface.BufferRequestConfig{
			Width:  width,
			Height: height,
			Format: format,
		})),
		eos: make(chan struct{}),
	}
	if err := d.queue.Consumer().RegisterConsumerListener(d.onFrameAvailable); err != nil {
		return nil, err
	}
	return d, nil
}

// Surface returns the producer end the engine renders into.
func (d *Display) Surface() surface.ProducerSurface {
	return d.queue.Producer()
}

// Stats returns a snapshot of the presentation counters.
func (d *Display) Stats() DisplayStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// EOS is closed once a frame carrying the end-of-stream flag is presented.
func (d *Display) EOS() <-chan struct{} {
	return d.eos
}

func (d *Display) onFrameAvailable() {
	consumer := d.queue.Consumer()
	for {
		info, err := consumer.AcquireBuffer()
		if err != nil {
			return
		}
		d.present(info)
		if err := consumer.ReleaseBuffer(info.Buffer); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Display.onFrameAvailable",
				"buffer":   info.Buffer.String(),
				"error":    err.Error(),
			}).Warn("Failed to release presented buffer")
		}
	}
}

func (d *Display) present(info surface.BufferInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Frames++
	d.stats.LastTimestamp = info.Timestamp
	d.stats.LastWidth = info.Buffer.Width
	d.stats.LastHeight = info.Buffer.Height
	d.stats.LastFormat = info.Buffer.Format.String()
	if info.IsEOS() && !d.stats.EOS {
		d.stats.EOS = true
		close(d.eos)
	}
}
