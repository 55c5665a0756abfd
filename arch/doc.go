// Package arch models the exact, architecture-specific layout of a saved CPU
// context as the interrupt stub would leave it on the stack, together with
// the single constructor (Initialize) that synthesizes a fresh one for a
// newly created thread.
//
// A real stub (assembly, one per vector) would read and write these bytes
// directly on the interrupt stack. This package has no stack of its own to
// write to — it models the same byte layout as a plain Go struct so that
// [Context.Initialize] and a simulated restore can be unit tested against
// the round-trip law: initialize(entry, cs, arg, stackTop) followed by a
// simulated restore resumes at entry with arg in the argument register.
// The real stub/dispatcher pairing that would drive this from actual
// hardware lives, in this repo, in package intr.
package arch
