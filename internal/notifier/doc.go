// Package notifier carries admitted incidents from the poll loop to the
// operator-facing renderers.
//
// # Queue
//
// The queue is a bounded channel. The poll loop is the only producer and
// never blocks on it: when the queue is full the newest item is dropped
// (load shedding, not backpressure). Closing the queue lets the delivery
// task drain the remaining items and exit.
//
// # Delivery
//
// A single delivery goroutine renders items one at a time. Render failures
// are logged and published on the event bus; they never stop the loop. In
// dry-run mode items are only logged.
//
// # Acknowledgements
//
// Renderers receive an AckFunc. Calling it schedules an event.acknowledge
// request on a separate supervisor so button presses are served even while
// the queue drains.
package notifier
