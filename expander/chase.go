package expander

import (
	"fmt"
	"math"
	"time"

	"github.com/antongulenko/portexpander/mcp23x17"
)

var DefaultChaseSequence = ChaseSequence{
	Circle:         true,
	PeakRadius:     2,
	Threshold:      0.5,
	SleepTime:      50 * time.Millisecond,
	PeakTravelTime: 1600 * time.Millisecond,
}

// ChaseSequence moves a brightness peak along a row of output pins.
type ChaseSequence struct {
	Circle         bool          // Wrap around at the end of the row, instead of bouncing back
	PeakRadius     int           // Number of pins around the peak that are not dark
	Threshold      float64       // Pins with a value above the threshold are switched on
	SleepTime      time.Duration // Time resolution for pin updates
	PeakTravelTime time.Duration // Time for the peak to travel all pins
}

// NumSteps is zero for sequences without a positive SleepTime, which Run rejects.
func (s *ChaseSequence) NumSteps(numRounds int) int {
	if s.SleepTime <= 0 {
		return 0
	}
	return int(s.PeakTravelTime/s.SleepTime) * numRounds
}

func (s *ChaseSequence) validate() error {
	if s.SleepTime <= 0 {
		return fmt.Errorf("Chase sequence sleep time must be positive, not %v", s.SleepTime)
	}
	if s.PeakTravelTime < s.SleepTime {
		return fmt.Errorf("Chase sequence peak travel time %v is shorter than the sleep time %v", s.PeakTravelTime, s.SleepTime)
	}
	return nil
}

// Run computes the values (0..1) of all pins for every step, without sleeping.
func (s *ChaseSequence) Run(numRounds int, numPins int, callback func(sleepTime time.Duration, values []float64) error) error {
	if err := s.validate(); err != nil {
		return err
	}
	stepsPerRound := float64(s.PeakTravelTime / s.SleepTime)
	timeStep := float64(numPins) / stepsPerRound

	values := make([]float64, numPins)
	numSteps := s.NumSteps(numRounds)
	for i := 0; i < numSteps; i++ {
		s.setValues(float64(i)*timeStep, values)
		if err := callback(s.SleepTime, values); err != nil {
			return fmt.Errorf("Error during chase sequence, step %v of %v: %v", i, numSteps, err)
		}
	}
	return nil
}

func (s *ChaseSequence) setValues(t float64, values []float64) {
	max := float64(len(values))
	radius := math.Max(float64(s.PeakRadius), 1)
	var mid float64
	if max <= 1 {
		mid = 0
	} else if s.Circle {
		mid = t - math.Floor(t/max)*max
	} else {
		// Travel to the last pin and back
		period := 2 * (max - 1)
		mid = t - math.Floor(t/period)*period
		if mid > max-1 {
			mid = period - mid
		}
	}

	for i := range values {
		x := math.Abs(float64(i) - mid)
		if s.Circle && max-x < x {
			// Distance wrapping around the end of the row
			x = max - x
		}
		if x > radius {
			values[i] = 0
		} else {
			v := math.Cos(x / radius * math.Pi)
			values[i] = (v + 1) / 2 // Map to 0..1
		}
	}
}

// Play claims the pins, switches them to outputs and runs the sequence. Every bank involved
// is switched to deferred write mode, so all pins of a bank change with one register write per step.
func (s *ChaseSequence) Play(pins []*mcp23x17.Pin, numRounds int) error {
	if err := s.validate(); err != nil {
		return err
	}
	for i, p := range pins {
		if err := p.Claim(); err != nil {
			for _, claimed := range pins[:i] {
				claimed.Release()
			}
			return err
		}
	}
	defer func() {
		for _, p := range pins {
			p.Release()
		}
	}()

	var banks []*mcp23x17.PinBank
	for _, p := range pins {
		if err := p.SetDirection(mcp23x17.Out); err != nil {
			return err
		}
		if !containsBank(banks, p.Bank()) {
			banks = append(banks, p.Bank())
		}
	}
	for _, b := range banks {
		defer b.SetWriteMode(b.WriteMode())
		b.SetWriteMode(mcp23x17.DeferredWrite)
	}

	return s.Run(numRounds, len(pins), func(sleepTime time.Duration, values []float64) error {
		for i, p := range pins {
			if err := p.SetValue(values[i] > s.Threshold); err != nil {
				return err
			}
		}
		for _, b := range banks {
			if err := b.Write(); err != nil {
				return err
			}
		}
		time.Sleep(sleepTime)
		return nil
	})
}

func containsBank(banks []*mcp23x17.PinBank, bank *mcp23x17.PinBank) bool {
	for _, b := range banks {
		if b == bank {
			return true
		}
	}
	return false
}
