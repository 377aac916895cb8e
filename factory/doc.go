// Package factory creates configured engines and their processing features.
//
// The factory hides which interfaces.Algorithm backs an engine. In production
// mode it builds the features from the algorithm package; in simulation mode
// it builds the scripted algorithm from the testing package, so consumers can
// exercise the full buffer pipeline without pixel work.
//
// # Configuration
//
// The default interfaces.VideoConfig can be overridden through environment
// variables. Invalid or out-of-range values are logged and ignored:
//   - VPE_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - VPE_OUTPUT_QUEUE_SIZE: output surface queue depth
//   - VPE_TRIGGER_TIMEOUT_MS: worker idle wake-up in milliseconds
//   - VPE_START_ENABLED: "true" or "false" for processing at start
//   - VPE_DETAIL_LEVEL: 0 (none) to 3 (high)
//   - VPE_COMPUTE_WORKERS: compute pool size, 0 for one per CPU
//
// # Usage
//
//	f := factory.NewVideoFactory()
//	eng, err := f.CreateVideo(interfaces.EffectDetailEnhancement,
//	    factory.WithDetailLevel(interfaces.DetailLevelHigh))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Testing Support
//
// CreateSimulationForTesting returns an engine driven by a simulated
// algorithm with a short trigger timeout, together with the simulation so
// tests can script failures:
//
//	eng, sim, err := f.CreateSimulationForTesting()
//	sim.FailNext(1, nil)
package factory
