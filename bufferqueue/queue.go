package bufferqueue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the number of slots a queue allocates unless configured otherwise.
const DefaultQueueSize = 3

var queueIDs atomic.Uint64

type slotState int

const (
	slotFree slotState = iota
	slotRequested
	slotQueued
	slotAcquired
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotRequested:
		return "requested"
	case slotQueued:
		return "queued"
	case slotAcquired:
		return "acquired"
	default:
		return fmt.Sprintf("slotState(%d)", int(s))
	}
}

type slot struct {
	buf      *surface.Buffer
	state    slotState
	attached bool
	flush    surface.FlushConfig
}

// Stats is a snapshot of slot states.
type Stats struct {
	Free      int
	Requested int
	Queued    int
	Acquired  int
	Attached  int
	Orphaned  int
	Total     int
}

// Queue is an in-process buffer queue.
// It is safe for concurrent use; listeners run without the queue lock held.
type Queue struct {
	id   uint64
	name string

	mu         sync.Mutex
	slots      map[uint32]*slot
	freeList   []uint32
	queued     []uint32
	orphans    map[uint32]*surface.Buffer
	size       int
	connected  bool
	defaultCfg surface.BufferRequestConfig
	usage      uint64
	transform  surface.Transform
	scaling    map[uint32]surface.ScalingMode

	releaseListener  surface.ReleaseListener
	consumerListener surface.ConsumerListener

	producer *Producer
	consumer *Consumer
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithQueueSize sets the slot count.
func WithQueueSize(size int) Option {
	return func(q *Queue) {
		q.size = size
	}
}

// WithDefaultRequestConfig sets the geometry used when a request leaves fields zero.
func WithDefaultRequestConfig(cfg surface.BufferRequestConfig) Option {
	return func(q *Queue) {
		q.defaultCfg = cfg
	}
}

// New creates a connected queue with both endpoints.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		id:        queueIDs.Add(1),
		name:      name,
		slots:     make(map[uint32]*slot),
		orphans:   make(map[uint32]*surface.Buffer),
		size:      DefaultQueueSize,
		connected: true,
		defaultCfg: surface.BufferRequestConfig{
			Width:  1920,
			Height: 1080,
			Format: surface.PixelFormatI420,
		},
		scaling: make(map[uint32]surface.ScalingMode),
	}

	for _, opt := range opts {
		opt(q)
	}
	if err := limits.ValidateQueueSize(q.size); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "bufferqueue.New",
			"name":      name,
			"requested": q.size,
			"using":     DefaultQueueSize,
			"error":     err.Error(),
		}).Warn("Invalid queue size, using default")
		q.size = DefaultQueueSize
	}

	q.producer = &Producer{q: q}
	q.consumer = &Consumer{q: q}

	logrus.WithFields(logrus.Fields{
		"function":   "bufferqueue.New",
		"name":       name,
		"id":         q.id,
		"queue_size": q.size,
	}).Debug("Buffer queue created")

	return q
}

// Producer returns the producer endpoint.
func (q *Queue) Producer() *Producer {
	return q.producer
}

// Consumer returns the consumer endpoint.
func (q *Queue) Consumer() *Consumer {
	return q.consumer
}

// Stats returns a snapshot of the slot states.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var st Stats
	for _, s := range q.slots {
		switch s.state {
		case slotFree:
			st.Free++
		case slotRequested:
			st.Requested++
		case slotQueued:
			st.Queued++
		case slotAcquired:
			st.Acquired++
		}
		if s.attached {
			st.Attached++
		}
	}
	st.Orphaned = len(q.orphans)
	st.Total = len(q.slots)
	return st
}

// Contains reports whether a buffer currently occupies a slot.
func (q *Queue) Contains(buf *surface.Buffer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.slots[buf.SeqNum()]
	return ok && s.buf == buf
}

// lookupLocked finds the slot for buf, checking identity as well as the sequence number.
func (q *Queue) lookupLocked(buf *surface.Buffer) (*slot, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", surface.ErrInvalidArgument)
	}
	s, ok := q.slots[buf.SeqNum()]
	if !ok || s.buf != buf {
		return nil, fmt.Errorf("%w: %s in %q", surface.ErrBufferNotFound, buf, q.name)
	}
	return s, nil
}

func (q *Queue) removeFromFreeListLocked(seq uint32) {
	for i, id := range q.freeList {
		if id == seq {
			q.freeList = append(q.freeList[:i], q.freeList[i+1:]...)
			return
		}
	}
}

func (q *Queue) removeFromQueuedLocked(seq uint32) {
	for i, id := range q.queued {
		if id == seq {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			return
		}
	}
}

// resolveConfigLocked fills zero fields of a request from the queue defaults.
func (q *Queue) resolveConfigLocked(cfg surface.BufferRequestConfig) surface.BufferRequestConfig {
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width = q.defaultCfg.Width
		cfg.Height = q.defaultCfg.Height
	}
	if cfg.Format == surface.PixelFormatUnknown {
		cfg.Format = q.defaultCfg.Format
	}
	if cfg.ColorSpace == surface.ColorSpaceUnknown {
		cfg.ColorSpace = q.defaultCfg.ColorSpace
	}
	cfg.Usage |= q.usage
	return cfg
}
