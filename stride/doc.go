// Package stride implements the reference scheduling Policy:
// proportional fair-share CPU allocation via stride scheduling, where each
// thread's share of the CPU is governed by a ticket count and the thread
// with the smallest accumulated virtual "pass" runs next.
//
// It depends only on package sched's Policy interface and package thread's
// Thread/RunQueue types; it never reaches into intr, intctl, or any other
// package. A Policy instance is stateless with respect to any one CPU — it
// is installed once and InitializeCPU'd once per CPU — so the only
// scheduling state it keeps for itself is the cross-CPU total_tickets table
// SelectCPU needs for least-loaded placement; besides that it holds only its
// logger and the quantum-overrun statistics.
package stride
