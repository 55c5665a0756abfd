package sched

import "github.com/cosmos-os/kernel/klog"

// options holds Manager's construction-time configuration: an unexported
// struct, populated by a chain of Option values, never exposed directly.
type options struct {
	switcher      Switcher
	log           *klog.Logger
	scavengeBatch int
}

func defaultOptions() options {
	return options{scavengeBatch: 32}
}

// Option configures a Manager at construction time.
type Option interface{ apply(*options) }

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithSwitcher installs the collaborator the tick and voluntary switch
// paths publish the chosen thread to. Omit it to run Manager in
// pure-accounting mode,
// with no execution engine attached — every test in this package does.
func WithSwitcher(s Switcher) Option {
	return optionFunc(func(o *options) { o.switcher = s })
}

// WithLogger installs the structured logger used for boot milestones and
// throttled diagnostics. Nil (the default) disables logging entirely.
func WithLogger(l *klog.Logger) Option {
	return optionFunc(func(o *options) { o.log = l })
}

// WithScavengeBatch overrides how many retired threads Registry.Scavenge
// reclaims per scheduleFromInterrupt entry. n <= 0 is ignored.
func WithScavengeBatch(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.scavengeBatch = n
		}
	})
}
