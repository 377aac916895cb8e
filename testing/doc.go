// Package testing provides simulated collaborators for deterministic tests of
// the processing engine.
//
// # Overview
//
// [SimulatedAlgorithm] implements interfaces.Algorithm without touching pixel
// math beyond a plain copy. It records every Process call and can be scripted
// to fail, which lets tests drive the engine's failure paths:
//
//	algo := vpetest.NewSimulatedAlgorithm("sim")
//	algo.FailNext(1, errors.New("injected"))
//
// [RecordingCallback] implements interfaces.Callback and keeps every event in
// order. An optional hook runs on each available output buffer so a test can
// answer with ReleaseOutputBuffer from inside the callback:
//
//	cb := vpetest.NewRecordingCallback()
//	cb.SetAvailableHook(func(index uint32, flag surface.BufferFlag) {
//	    eng.ReleaseOutputBuffer(index, true)
//	})
//
// The package name collides with the standard library, so import it under an
// alias such as vpetest.
//
// # Thread Safety
//
// Both types are safe for concurrent use. The engine calls them from its
// worker goroutine while tests inspect them from the test goroutine.
package testing
