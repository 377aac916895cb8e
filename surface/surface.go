package surface

// Surface is the identity shared by both endpoints of a buffer queue.
type Surface interface {
	// UniqueID identifies the underlying queue; both endpoints report the same ID
	UniqueID() uint64
	// Name returns a human readable queue name for logs
	Name() string
	// IsConsumer reports whether this endpoint is the consumer side
	IsConsumer() bool
}

// ReleaseListener is invoked when the consumer side returns a buffer to the producer.
type ReleaseListener func(buf *Buffer) error

// ConsumerListener is invoked when a flushed buffer becomes available to acquire.
type ConsumerListener func()

// ProducerSurface is the producer endpoint of a buffer queue.
type ProducerSurface interface {
	Surface

	// RequestBuffer hands out a free buffer matching cfg, allocating one if the
	// queue has not reached its size. Returns ErrNoBuffer when every slot is busy.
	RequestBuffer(cfg BufferRequestConfig) (*Buffer, error)
	// CancelBuffer returns a requested buffer without queueing it
	CancelBuffer(buf *Buffer) error
	// FlushBuffer queues a requested buffer for the consumer
	FlushBuffer(buf *Buffer, cfg FlushConfig) error

	// AttachBufferToQueue adds a foreign buffer to the queue in the requested state
	AttachBufferToQueue(buf *Buffer) error
	// DetachBufferFromQueue removes a requested buffer from the queue
	DetachBufferFromQueue(buf *Buffer) error

	RegisterReleaseListener(listener ReleaseListener) error
	UnregisterReleaseListener() error

	SetQueueSize(size int) error
	QueueSize() int
	Connect() error
	Disconnect() error
	// CleanCache forgets every slot the consumer does not currently hold
	CleanCache() error

	SetTransform(transform Transform) error
	Transform() Transform
	SetScalingMode(seq uint32, mode ScalingMode) error

	// DefaultRequestConfig returns the geometry the consumer side asked for
	DefaultRequestConfig() BufferRequestConfig
}

// ConsumerSurface is the consumer endpoint of a buffer queue.
type ConsumerSurface interface {
	Surface

	// AcquireBuffer takes the oldest queued buffer. Returns ErrNoBufferReady when empty.
	AcquireBuffer() (BufferInfo, error)
	// ReleaseBuffer returns an acquired buffer to the free list
	ReleaseBuffer(buf *Buffer) error

	RegisterConsumerListener(listener ConsumerListener) error
	UnregisterConsumerListener() error

	SetDefaultUsage(usage uint64) error
	SetDefaultRequestConfig(cfg BufferRequestConfig) error
	SetQueueSize(size int) error
	// Transform returns the transform most recently set by the producer
	Transform() Transform

	// InputSurface returns the producer endpoint that feeds this consumer
	InputSurface() ProducerSurface
}
