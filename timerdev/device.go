package timerdev

// Device is the timer collaborator contract: start it at a chosen
// interval, then repeatedly Wait for the next tick, which reports elapsed
// nanoseconds since the previous one (as computed from the device's
// programmed rate). After Stop, every future Wait call returns ok == false.
// Fake also releases a Wait already in flight; LinuxTimer does not release
// a Wait that is already blocked in epoll_wait.
type Device interface {
	Start(intervalNS uint64) error
	Stop() error
	Wait() (elapsedNS uint64, ok bool)
}
