// Package maintenance runs scheduled housekeeping for the relay, currently
// the seen-event prune.
package maintenance
