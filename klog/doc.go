// Package klog is the kernel's structured logging surface: a thin wrapper
// over logiface, backed by the logiface/zerolog adapter, writing newline-
// delimited JSON to whatever serial.Writer the boot sequence wires up.
//
// Three entry points cover the kernel's logging needs: Boot for one-shot
// startup/shutdown milestones, Warn for unconditional non-fatal diagnostics,
// and Throttled for diagnostics that can recur at interrupt rate (lock
// contention, balance skips) and need a per-category rate limit so a noisy
// condition cannot starve the serial line. Fatal logs at the emergency
// level for the fatal-exception path.
package klog
