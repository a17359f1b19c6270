package device

import "sync"

// FuelMeter accumulates burned fuel on the host side. The controller
// reports instantaneous consumption (kg/h) but no running total, so the
// meter integrates consumption over the time between telemetry samples.
//
// Calibrate and Reset act on the local counter only; nothing is written
// to the device.
type FuelMeter struct {
	mu    sync.Mutex
	total float64 // kg
}

// NewFuelMeter returns a meter starting at zero.
func NewFuelMeter() *FuelMeter {
	return &FuelMeter{}
}

// Accrue adds consumption (kg/h) sustained for elapsed seconds and
// returns the new total. Non-positive inputs accrue nothing.
func (m *FuelMeter) Accrue(kgPerHour, elapsedSeconds float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kgPerHour > 0 && elapsedSeconds > 0 {
		m.total += kgPerHour * elapsedSeconds / 3600
	}
	return m.total
}

// Calibrate sets the counter to an absolute value, typically to carry
// over a total from a previous run.
func (m *FuelMeter) Calibrate(total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// Reset zeroes the counter.
func (m *FuelMeter) Reset() {
	m.Calibrate(0)
}

// Total returns the accumulated burned fuel in kg.
func (m *FuelMeter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
