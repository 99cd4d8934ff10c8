package expander

import (
	"errors"
	"testing"
	"time"

	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/antongulenko/portexpander/mcp23x17/mcp23x17sim"
	"github.com/stretchr/testify/assert"
)

func TestChaseSequence(t *testing.T) {
	a := assert.New(t)

	numRounds := 4
	numPins := 8
	var first []float64
	steps := 0
	seq := DefaultChaseSequence
	err := seq.Run(numRounds, numPins, func(sleepTime time.Duration, values []float64) error {
		a.Equal(seq.SleepTime, sleepTime, "wrong sleep time")
		a.Equal(numPins, len(values))
		for _, v := range values {
			a.True(v >= 0 && v <= 1, "value out of range: %v", v)
		}
		if first == nil {
			first = append([]float64(nil), values...)
		}
		steps++
		return nil
	})
	a.Nil(err)

	x := float64(seq.PeakTravelTime / seq.SleepTime)
	a.Equal(int(x*float64(numRounds)), steps)
	a.Equal(steps, seq.NumSteps(numRounds))

	a.Equal(1.0, first[0], "peak starts at the first pin")
	a.Equal(0.0, first[4])
	a.InDelta(first[1], first[7], 1e-9, "circling distance wraps around")
}

func TestChaseSequenceBouncing(t *testing.T) {
	a := assert.New(t)
	seq := ChaseSequence{PeakRadius: 1}
	values := make([]float64, 8)

	seq.setValues(7, values)
	a.Equal(1.0, values[7])
	a.Equal(0.0, values[0], "no wrapping around without circling")

	seq.setValues(10, values)
	a.Equal(1.0, values[4], "peak travels back")

	seq.setValues(14, values)
	a.Equal(1.0, values[0])

	one := make([]float64, 1)
	seq.setValues(3, one)
	a.Equal(1.0, one[0])
}

func TestChaseSequenceError(t *testing.T) {
	a := assert.New(t)
	seq := DefaultChaseSequence
	fail := errors.New("failed")
	steps := 0
	err := seq.Run(1, 4, func(time.Duration, []float64) error {
		steps++
		if steps == 3 {
			return fail
		}
		return nil
	})
	a.Error(err)
	a.Equal(3, steps)
}

func TestChaseSequenceInvalidTiming(t *testing.T) {
	a := assert.New(t)
	called := false
	callback := func(time.Duration, []float64) error {
		called = true
		return nil
	}
	for _, seq := range []ChaseSequence{
		{PeakRadius: 2, PeakTravelTime: time.Second},
		{PeakRadius: 2, SleepTime: -time.Millisecond, PeakTravelTime: time.Second},
		{PeakRadius: 2, SleepTime: time.Second, PeakTravelTime: time.Millisecond},
	} {
		a.Error(seq.Run(1, 8, callback))
	}
	a.False(called)
	a.Equal(0, (&ChaseSequence{PeakTravelTime: time.Second}).NumSteps(3))

	sim := mcp23x17sim.New()
	chip := mcp23x17.New(sim)
	a.NoError(chip.Reset(mcp23x17.ResetOptions{}))
	sim.ClearWrites()
	seq := ChaseSequence{PeakTravelTime: time.Second}
	pins := chip.Bank(mcp23x17.BankA).Pins()
	a.Error(seq.Play(pins, 1))
	a.Empty(sim.Writes())
	a.False(pins[0].Claimed())
}

func TestChaseSequencePlay(t *testing.T) {
	a := assert.New(t)
	sim := mcp23x17sim.New()
	chip := mcp23x17.New(sim)
	a.NoError(chip.Reset(mcp23x17.ResetOptions{}))
	sim.ClearWrites()

	seq := ChaseSequence{
		Circle:         true,
		PeakRadius:     2,
		Threshold:      0.5,
		SleepTime:      time.Millisecond,
		PeakTravelTime: 8 * time.Millisecond,
	}
	pins := chip.Bank(mcp23x17.BankA).Pins()
	a.NoError(seq.Play(pins, 1))

	a.Equal([]byte{0x00}, sim.WritesTo(mcp23x17.BankA, mcp23x17.IODIR)[7:])
	olat := sim.WritesTo(mcp23x17.BankA, mcp23x17.OLAT)
	a.Len(olat, seq.NumSteps(1), "one write per step")
	a.Equal(byte(0x01), olat[0]&0x01)
	a.Empty(sim.WritesTo(mcp23x17.BankB, mcp23x17.OLAT))

	a.Equal(mcp23x17.ImmediateWrite, chip.Bank(mcp23x17.BankA).WriteMode())
	for _, p := range pins {
		a.False(p.Claimed())
	}

	a.NoError(pins[3].Claim())
	a.Error(seq.Play(pins, 1))
	a.False(pins[0].Claimed())
	a.True(pins[3].Claimed())
}
