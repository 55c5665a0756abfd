// Package thread implements the Thread Control Block: identity, the
// {Created, Ready, Running, Blocked, Sleeping, Dead} state machine, the
// stack region and saved-context pointer, and the policy extension slot.
//
// Package sched owns all scheduling decisions; package thread only owns the
// TCB itself and the two storage structures built around it: RunQueue (an
// ordered container of ready threads) and Registry (deferred reclamation of
// Dead threads' stacks).
//
// A subtlety not spelled out by the state diagram: "Remember whether
// next.state == Created" at pick time cannot literally mean the thread is
// still in Created state, since ready_thread already promotes Created to
// Ready before a thread can reach the front of any run queue. Thread tracks
// this separately with an internal started flag, set the first time
// MarkRunning succeeds; MarkRunning's isNew return value is !started at the
// time of the call, which is what distinguishes the new-thread restore path
// from an ordinary Ready->Running pick.
package thread
