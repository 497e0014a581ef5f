// Package poller turns active incidents into notification work.
//
// A Processor runs one cycle: fetch, resolve hosts, rank, cap, then admit
// each item through the dedup cache and the rate limiter before handing it
// to the notifier queue. The Scheduler repeats cycles at a fixed cadence and
// owns shutdown of the delivery side.
package poller
