// Package algorithm provides the concrete pixel processing features plugged
// into the engine through interfaces.Algorithm.
//
// Three features are available:
//
//   - DetailEnhancer scales the input to the negotiated output size and
//     sharpens luma with an unsharp kernel whose strength follows the detail
//     level (none, low, medium, high).
//   - AIHDREnhancer measures the luma histogram of every frame and expands it
//     with an adaptive tone curve, lifting or compressing midtones depending
//     on the average brightness.
//   - ColorSpaceConverter re-encodes I420 between the BT.601, BT.709 and
//     BT.2020 matrices, or converts I420 into packed RGBA8888.
//
// Each feature embeds Base, which supplies the default request negotiation
// and owns a ComputeContext. The compute context is started in OnInitialize
// and closed in OnDeinitialize; between those calls Process may run row
// loops on its workers.
//
// Features are driven by a single engine worker. Process is not safe for
// concurrent use on the same feature value.
//
// Example:
//
//	feature, err := algorithm.NewDetailEnhancer(interfaces.DetailLevelHigh, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.New(feature)
//
// RGBAToI420 and I420ToRGBA are exported for frame sources and sinks that
// work with image.RGBA, such as the demo test-pattern generator.
package algorithm
