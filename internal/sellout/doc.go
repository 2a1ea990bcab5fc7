// Package sellout classifies ticket availability and scans recent status
// transitions for alert-worthy activity.
//
// Detector is a pure classifier: the status of a signal depends on nothing
// but the signal itself, so fixed fixtures always classify identically.
// Monitor reads persisted transitions over a lookback window and decides
// whether enough events went selling-fast or sold-out to warrant an alert.
package sellout
