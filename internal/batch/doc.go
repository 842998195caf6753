// Package batch holds the persisted render queues and the scheduler that
// walks them one batch at a time.
//
// A Queue never blocks on rendering: it hands the current batch to a
// dispatch callback and waits for OnBatchComplete. Pause is cooperative and
// only observed when the in-flight batch reports back. Queue files always
// record is_active=false so a crashed run is never resumed silently.
package batch
