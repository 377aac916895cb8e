// Package surface defines graphics buffers and the producer/consumer surface
// contracts the post-processing engine is built on.
//
// A surface is one endpoint of a buffer queue. The producer end requests empty
// buffers, fills them and flushes them into the queue; the consumer end acquires
// flushed buffers, reads them and releases them so the producer can reuse them.
//
//	producer                 queue                 consumer
//	RequestBuffer  ◄──── free slots ◄──────────── ReleaseBuffer
//	FlushBuffer    ────► queued slots ───────────► AcquireBuffer
//
// # Buffers
//
// [Buffer] is a shared handle. The same *Buffer may be referenced by a surface
// slot and by an engine queue at the same time; Go's garbage collector owns the
// memory so no reference counting is needed. Every buffer gets a sequence number
// from a process-wide counter when it is allocated:
//
//	buf, err := surface.NewBuffer(surface.BufferRequestConfig{
//	    Width:  1920,
//	    Height: 1080,
//	    Format: surface.PixelFormatI420,
//	})
//	seq := buf.SeqNum()
//
// Sequence numbers are never reused for the lifetime of the process, which makes
// them safe keys for matching flush and attach completions.
//
// # Buffer Info
//
// [BufferInfo] couples a buffer with its flag and presentation timestamp. A
// BufferInfo whose Buffer is nil and whose flag is [BufferFlagNone] is a
// sentinel meaning "the owning queue was cleared" and must be discarded.
//
// # Implementations
//
// The bufferqueue package provides an in-process implementation of both
// [ProducerSurface] and [ConsumerSurface]. Platform integrations implement the
// same interfaces on top of native buffer queues.
//
// # Thread Safety
//
// Implementations of [ProducerSurface] and [ConsumerSurface] must be safe for
// concurrent use. Listeners may be invoked on any goroutine.
package surface
