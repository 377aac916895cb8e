// Package interfaces defines the contracts between the video processing engine
// and its collaborators.
//
// [Algorithm] is the hook a concrete feature implements. The engine pairs an
// input frame with an output buffer and calls [Algorithm.Process]; it never
// needs to know which feature it drives:
//
//	type invert struct{ algorithm.Base }
//
//	func (invert) Process(src, dst *surface.Buffer) error {
//	    for i, b := range src.Data {
//	        dst.Data[i] = 255 - b
//	    }
//	    return nil
//	}
//
// [Callback] receives asynchronous events from the engine. [CallbackFuncs]
// adapts plain functions so callers only supply the events they care about:
//
//	cb := &interfaces.CallbackFuncs{
//	    OutputBufferAvailable: func(index uint32, flag surface.BufferFlag) {
//	        video.ReleaseOutputBuffer(index, true)
//	    },
//	}
//
// # Configuration
//
// [VideoConfig] holds the engine tuning knobs. Start from [DefaultVideoConfig]
// and validate before use:
//
//	cfg := interfaces.DefaultVideoConfig()
//	cfg.OutputQueueSize = 8
//	if err := cfg.Validate(); err != nil {
//	    log.Fatalf("invalid config: %v", err)
//	}
//
// # Thread Safety
//
// Callback methods are invoked from the engine worker goroutine and from the
// goroutines that call the engine API. Implementations must be safe for
// concurrent use and may call back into the engine, except for Flush.
package interfaces
