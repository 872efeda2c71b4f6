// Package kickrunner provides a single-goroutine hand-off primitive for Go.
//
// A Worker binds one callback to one dedicated goroutine at creation time.
// Callers then "kick" the goroutine to run that callback asynchronously,
// optionally block until the run completes, and finally shut the goroutine
// down. The contract is deliberately small:
//
//   - At most one run of the callback is in flight at any time.
//   - A kick issued while the callback is running is dropped, not queued.
//     Signal reports whether the kick was accepted.
//   - Wait returns once no run is executing and no accepted kick is pending.
//   - Destroy lets the current run finish, then stops the goroutine.
//
// # Quick Start
//
//	w := kickrunner.StartWorker(nil, func(ctx context.Context) {
//		renderFrame()
//	})
//	defer w.Destroy()
//
//	for running {
//		w.Wait()   // previous frame finished
//		w.Signal() // start the next one
//	}
//
// # Groups
//
// A Group drives several named workers together, e.g. one per subsystem:
//
//	g := kickrunner.NewGroup(nil)
//	defer g.Destroy()
//	g.Add("audio", mixAudio)
//	g.Add("render", renderFrame)
//	g.SignalAll()
//	g.WaitAll()
//
// # Timing
//
// GetTicks returns milliseconds since process start from the monotonic clock,
// for hosts that schedule kicks on a frame budget.
//
// # Failures
//
// By default a panic inside the callback crashes the process, as any
// unrecovered goroutine panic does. Set WorkerConfig.PanicHandler to recover,
// report and keep serving kicks instead.
package kickrunner
