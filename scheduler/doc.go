// Package scheduler runs fire-and-forget tasks on a bounded set of workers.
//
// Submit hands the task to its own goroutine and returns; the goroutine
// waits on a weighted semaphore for one of the pool's worker slots. The Go
// runtime's work-stealing scheduler spreads the goroutines over threads.
// There is no result channel and no cancellation: a task, once started,
// runs to completion.
package scheduler
