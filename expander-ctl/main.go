package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/antongulenko/golib"
	"github.com/antongulenko/portexpander/bus"
	"github.com/antongulenko/portexpander/expander"
	"github.com/antongulenko/portexpander/mcp23x17"
	log "github.com/sirupsen/logrus"
)

type commandFunc func() error

var (
	e           = expander.DefaultExpander
	sleepTime   = 400 * time.Millisecond
	benchTime   = 3 * time.Second
	watchTime   = time.Duration(0)
	chaseRounds = 3
	command     = "scan"
	commands    = map[string]commandFunc{
		"none":     func() error { return nil },
		"scan":     scan,
		"reset":    reset,
		"dump":     dump,
		"get":      get,
		"set":      set,
		"watch":    watch,
		"chase":    chase,
		"loopback": loopback,
		"bench":    benchmark,
	}
	stopped = make(chan struct{})
)

func main() {
	e.RegisterFlags()
	flag.DurationVar(&sleepTime, "sleep", sleepTime, "Maximum time between interrupt checks (watch command)")
	flag.DurationVar(&benchTime, "benchTime", benchTime, "Benchmark time (bench command)")
	flag.DurationVar(&watchTime, "watchTime", watchTime, "Time to watch pins, zero for no limit (watch command)")
	flag.IntVar(&chaseRounds, "rounds", chaseRounds, "Number of rounds (chase command)")
	flag.StringVar(&command, "c", command, fmt.Sprintf("Command to execute, one of: %v", commandNames()))
	golib.RegisterLogFlags()
	flag.Parse()
	golib.ConfigureLogging()

	// "Clean" shutdown with Ctrl-C signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	var stopOnce sync.Once
	go func() {
		log.Println("Received signal", <-c)
		stopOnce.Do(func() { close(stopped) })
	}()

	err := doMain()
	e.Cleanup()
	golib.Checkerr(err)
}

func commandNames() []string {
	allCommandNames := make([]string, 0, len(commands))
	for commandName := range commands {
		allCommandNames = append(allCommandNames, commandName)
	}
	sort.Strings(allCommandNames)
	return allCommandNames
}

func doMain() error {
	commandFunc, ok := commands[command]
	if !ok {
		return fmt.Errorf("Unknown command %v, available commands: %v", command, commandNames())
	}
	if err := e.Setup(); err != nil {
		return err
	}
	return commandFunc()
}

func isStopped() bool {
	select {
	case <-stopped:
		return true
	default:
		return false
	}
}

func scan() error {
	b := e.Bus()
	if b == nil {
		return fmt.Errorf("Scanning requires an I2C bus, not available with transport %v (dummy: %v)", e.Transport, e.Dummy)
	}
	slaves, err := bus.Scan(b)
	if err != nil {
		return err
	}
	log.Printf("Scanned slaves: %#02v", slaves)
	return nil
}

func reset() error {
	return e.Chip().Reset(e.Reset)
}

func dump() error {
	regs, err := e.Registers()
	if err != nil {
		return err
	}
	for addr, val := range regs {
		bank, reg, err := mcp23x17.RegisterAt(byte(addr))
		if err != nil {
			return err
		}
		fmt.Printf("%#02x %7v%v = %#02x (%08b)\n", addr, reg, bank, val, val)
	}
	return nil
}

// Pin names from the command line, all pins if none are given
func argPins() ([]*mcp23x17.Pin, error) {
	if flag.NArg() == 0 {
		var pins []*mcp23x17.Pin
		for _, b := range e.Chip().Banks() {
			pins = append(pins, b.Pins()...)
		}
		return pins, nil
	}
	pins := make([]*mcp23x17.Pin, 0, flag.NArg())
	for _, name := range flag.Args() {
		p, err := e.Chip().PinByName(name)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, nil
}

func get() error {
	pins, err := argPins()
	if err != nil {
		return err
	}
	for _, p := range pins {
		err := p.With(func(p *mcp23x17.Pin) error {
			dir, err := p.Direction()
			if err != nil {
				return err
			}
			val, err := p.Value()
			if err != nil {
				return err
			}
			pullUp, err := p.PullUp()
			if err != nil {
				return err
			}
			inverted, err := p.Inverted()
			if err != nil {
				return err
			}
			fmt.Printf("%v: %v %v (pull-up: %v, inverted: %v)\n", p, dir, boolValue(val), pullUp, inverted)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func boolValue(val bool) int {
	if val {
		return 1
	}
	return 0
}

// Arguments of the form GPA0=1, GPA0=0, GPA0=in, GPA0=up (input with pull-up)
func set() error {
	if flag.NArg() == 0 {
		return fmt.Errorf("No pin settings given, expected e.g. GPA0=1 GPB3=in")
	}
	for _, arg := range flag.Args() {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("Invalid pin setting '%v', expected <pin>=<0|1|in|up>", arg)
		}
		p, err := e.Chip().PinByName(parts[0])
		if err != nil {
			return err
		}
		err = p.With(func(p *mcp23x17.Pin) error {
			switch strings.ToLower(parts[1]) {
			case "0", "1":
				if err := p.SetValue(parts[1] == "1"); err != nil {
					return err
				}
				return p.SetDirection(mcp23x17.Out)
			case "in":
				if err := p.SetDirection(mcp23x17.In); err != nil {
					return err
				}
				return p.SetPullUp(false)
			case "up":
				if err := p.SetDirection(mcp23x17.In); err != nil {
					return err
				}
				return p.SetPullUp(true)
			default:
				return fmt.Errorf("Invalid value '%v' for pin %v", parts[1], p)
			}
		})
		if err != nil {
			return err
		}
		log.Printf("Set %v to %v", p, parts[1])
	}
	return nil
}

func watch() error {
	pins, err := argPins()
	if err != nil {
		return err
	}
	chip := e.Chip()
	chip.SetReadMode(mcp23x17.DeferredRead)
	for _, p := range pins {
		if err := p.Claim(); err != nil {
			return err
		}
		defer p.Release()
		if err := p.SetDirection(mcp23x17.In); err != nil {
			return err
		}
		if err := p.InterruptOnChange(); err != nil {
			return err
		}
	}
	if err := chip.Read(); err != nil {
		return err
	}
	log.Printf("Watching %v pin(s)", len(pins))

	start := time.Now()
	for !isStopped() && (watchTime == 0 || time.Since(start) < watchTime) {
		active, err := e.WaitForInterrupt(sleepTime)
		if err != nil {
			// Without interrupt line, poll the chip
			log.Debugln("Polling instead of waiting for interrupt:", err)
			time.Sleep(sleepTime)
		} else if !active {
			continue
		}
		if err := chip.Read(); err != nil {
			return err
		}
		for _, p := range pins {
			changed, err := p.InterruptFlag()
			if err != nil {
				return err
			}
			if changed {
				captured, err := p.Interrupt()
				if err != nil {
					return err
				}
				log.Printf("%v changed to %v", p, boolValue(captured))
			}
		}
	}
	return nil
}

func chase() error {
	pins, err := argPins()
	if err != nil {
		return err
	}
	seq := expander.DefaultChaseSequence
	log.Printf("Playing chase sequence on %v pin(s) for %v round(s)", len(pins), chaseRounds)
	return seq.Play(pins, chaseRounds)
}

// Requires every pin of bank A to be wired to the pin with the same index in bank B
func loopback() error {
	chip := e.Chip()
	failed := 0
	for i := 0; i < mcp23x17.PinsPerBank; i++ {
		for _, banks := range [][2]mcp23x17.Bank{{mcp23x17.BankA, mcp23x17.BankB}, {mcp23x17.BankB, mcp23x17.BankA}} {
			out, in := chip.Pin(banks[0], i), chip.Pin(banks[1], i)
			ok, err := checkLoopback(out, in)
			if err != nil {
				return err
			}
			if !ok {
				log.Errorf("Loopback %v -> %v failed", out, in)
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%v of %v loopback checks failed", failed, 2*mcp23x17.PinsPerBank)
	}
	log.Println("All loopback checks successful")
	return nil
}

func checkLoopback(out, in *mcp23x17.Pin) (bool, error) {
	ok := true
	err := in.With(func(in *mcp23x17.Pin) error {
		return out.With(func(out *mcp23x17.Pin) error {
			if err := in.SetDirection(mcp23x17.In); err != nil {
				return err
			}
			if err := out.SetDirection(mcp23x17.Out); err != nil {
				return err
			}
			for _, v := range []bool{true, false} {
				if err := out.SetValue(v); err != nil {
					return err
				}
				val, err := in.Value()
				if err != nil {
					return err
				}
				ok = ok && val == v
			}
			return out.SetDirection(mcp23x17.In)
		})
	})
	return ok, err
}

func benchmark() error {
	bank := e.Chip().Bank(mcp23x17.BankA)
	if err := bank.SetRegister(mcp23x17.IODIR, mcp23x17.OUTPUT); err != nil {
		return err
	}
	defer func() {
		golib.Printerr(bank.SetRegister(mcp23x17.IODIR, mcp23x17.INPUT))
	}()

	log.Println("Measuring register writes...")
	val := byte(0xFF)
	err := bench(func() error {
		val = ^val
		return bank.SetRegister(mcp23x17.OLAT, val)
	})
	if err != nil {
		return err
	}

	log.Println("Measuring register reads...")
	return bench(func() error {
		_, err := bank.Register(mcp23x17.GPIO)
		return err
	})
}

func bench(benchFunc func() error) error {
	start := time.Now()
	for i := 1; ; i++ {
		if err := benchFunc(); err != nil {
			return err
		}
		if i%20 == 0 {
			if duration := time.Since(start); duration > benchTime || isStopped() {
				log.Printf("%v register accesses in %v -> %.1f per second", i, duration, float64(i)/duration.Seconds())
				break
			}
		}
	}
	return nil
}
