// Package dedup holds the in-memory seen-event table used by the relay to
// suppress webhook retransmissions inside core.DedupWindow.
package dedup
