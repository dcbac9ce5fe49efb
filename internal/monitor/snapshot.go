// internal/monitor/snapshot.go
package monitor

import (
	"time"

	"github.com/notnil/canbms/bms"
	"github.com/notnil/canbms/canopen"
)

// Snapshot is one poll result for one battery. Optional fields are nil when
// the values they derive from were not read.
type Snapshot struct {
	Node           canopen.NodeID     `yaml:"node"`
	DeviceInstance int                `yaml:"device_instance"`
	ProductName    string             `yaml:"product_name"`
	Connected      bool               `yaml:"connected"`
	At             time.Time          `yaml:"at"`
	Values         map[string]float64 `yaml:"values,omitempty"`

	Voltage      *float64 `yaml:"voltage,omitempty"`     // V
	Current      *float64 `yaml:"current,omitempty"`     // A, positive while charging
	Power        *float64 `yaml:"power,omitempty"`       // W, voltage * current
	Temperature  *float64 `yaml:"temperature,omitempty"` // °C
	SoC          *float64 `yaml:"soc,omitempty"`         // %
	ConsumedAh   *float64 `yaml:"consumed_ah,omitempty"` // capacity * (100 - soc) / 100
	ChargeCycles *int     `yaml:"charge_cycles,omitempty"`
	TotalAhDrawn *float64 `yaml:"total_ah_drawn,omitempty"`

	Readings bms.Readings `yaml:"-"`
	Err      error        `yaml:"-"`
}

func ptr[T any](v T) *T { return &v }

// Derive fills the battery level fields of s from readings. capacity is the
// installed capacity in Ah.
func (s *Snapshot) Derive(readings bms.Readings, capacity float64) {
	s.Readings = readings
	s.Values = readings.Map()
	s.Connected = len(readings) > 0

	v, hasV := readings.Get(bms.Voltage)
	if hasV {
		s.Voltage = ptr(v)
	}
	if i, ok := readings.Get(bms.Current); ok {
		s.Current = ptr(i)
		if hasV {
			s.Power = ptr(v * i)
		}
	}
	if t, ok := readings.Get(bms.Temperature); ok {
		s.Temperature = ptr(t)
	}
	if soc, ok := readings.Get(bms.StateOfCharge); ok {
		s.SoC = ptr(soc)
		s.ConsumedAh = ptr(capacity * (100 - soc) / 100)
	}
	if c, ok := readings.Get(bms.Cycles); ok {
		s.ChargeCycles = ptr(int(c))
	}
	if ah, ok := readings.Get(bms.AhSinceEqualize); ok {
		s.TotalAhDrawn = ptr(ah)
	}
}
