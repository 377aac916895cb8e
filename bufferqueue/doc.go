// Package bufferqueue implements an in-process buffer queue that provides both
// the producer and the consumer endpoint of a surface.
//
// A [Queue] owns a bounded set of slots keyed by buffer sequence number. Each
// slot moves through four states:
//
//	free ──RequestBuffer──► requested ──FlushBuffer──► queued
//	  ▲                        │                         │
//	  │                   CancelBuffer              AcquireBuffer
//	  │                        ▼                         ▼
//	  └──────────────────── free ◄──ReleaseBuffer─── acquired
//
// Foreign buffers can be attached in the requested state and detached again,
// which lets a pipeline pass a buffer straight from one queue to another
// without copying pixels.
//
// # Usage
//
//	q := bufferqueue.New("display", bufferqueue.WithQueueSize(5))
//	producer := q.Producer()
//	consumer := q.Consumer()
//
//	consumer.RegisterConsumerListener(func() {
//	    info, err := consumer.AcquireBuffer()
//	    if err != nil {
//	        return
//	    }
//	    show(info.Buffer)
//	    consumer.ReleaseBuffer(info.Buffer)
//	})
//
//	buf, err := producer.RequestBuffer(surface.BufferRequestConfig{
//	    Width: 1280, Height: 720, Format: surface.PixelFormatI420,
//	})
//	fill(buf)
//	producer.FlushBuffer(buf, surface.FlushConfig{Timestamp: pts})
//
// # Listeners
//
// Listeners are always invoked after the queue lock has been released, on the
// goroutine that triggered them (FlushBuffer for the consumer listener,
// ReleaseBuffer for the release listener). Listeners may call back into the
// queue.
package bufferqueue
