// state keeps lifecycle state of a service in an atomic variable
package state

import "sync/atomic"

type Machine struct {
	state uint32
}

func (m *Machine) Set(newState uint32) {
	atomic.StoreUint32(&m.state, newState)
}

func (m *Machine) Get() uint32 {
	return atomic.LoadUint32(&m.state)
}

// Is reports if current state is `s`
func (m *Machine) Is(s uint32) bool {
	return m.Get() == s
}

// Change moves to `newState` only from `oldState`
func (m *Machine) Change(oldState, newState uint32) bool {
	return atomic.CompareAndSwapUint32(&m.state, oldState, newState)
}

// Swap sets `newState` and returns the previous one
func (m *Machine) Swap(newState uint32) uint32 {
	return atomic.SwapUint32(&m.state, newState)
}
