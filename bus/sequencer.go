package bus

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrSequencerClosed = errors.New("I2C sequencer closed")

const (
	I2cWrite = iota + 1
	I2cRead
	I2cWriteRead
	I2cGet
)

type I2cRequest struct {
	Type        int
	Addr        byte
	DataWrite   []byte
	DataRead    []byte
	GetRegister byte // Only for I2cGet
	GetSize     int  // Only for I2cGet
	Error       error

	done bool
	wait *sync.Cond
}

func (r *I2cRequest) init() {
	r.wait = &sync.Cond{L: new(sync.Mutex)}
}

func (r *I2cRequest) Wait() {
	r.wait.L.Lock()
	defer r.wait.L.Unlock()
	for !r.done {
		r.wait.Wait()
	}
}

func (r *I2cRequest) notifyDone() {
	r.wait.L.Lock()
	defer r.wait.L.Unlock()
	r.done = true
	r.wait.Broadcast()
}

// Sequencer serializes I2C operations from multiple goroutines through one goroutine
// that owns the underlying bus. It implements I2cBus itself.
type Sequencer struct {
	bus   I2cBus
	queue chan *I2cRequest

	closeLock sync.RWMutex
	closed    bool
	stopped   chan struct{}
}

func NewSequencer(bus I2cBus, queueSize int) *Sequencer {
	s := &Sequencer{
		bus:     bus,
		queue:   make(chan *I2cRequest, queueSize),
		stopped: make(chan struct{}),
	}
	go s.handleRequests()
	return s
}

// Close lets already queued requests finish. Later requests fail with ErrSequencerClosed.
func (s *Sequencer) Close() {
	s.closeLock.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.closeLock.Unlock()
	<-s.stopped
}

func (s *Sequencer) handleRequests() {
	defer close(s.stopped)
	for req := range s.queue {
		switch req.Type {
		case I2cWrite:
			req.Error = s.bus.I2cWrite(req.Addr, req.DataWrite...)
		case I2cRead:
			req.Error = s.bus.I2cRead(req.Addr, req.DataRead)
		case I2cWriteRead:
			req.Error = s.bus.I2cWriteRead(req.Addr, req.DataWrite, req.DataRead)
		case I2cGet:
			req.DataRead, req.Error = s.bus.I2cGet(req.Addr, req.GetRegister, req.GetSize)
		default:
			log.Errorln("Ignoring invalid I2C request with type", req.Type)
			req.Error = errors.Errorf("Invalid I2C request type %v", req.Type)
		}
		req.notifyDone()
	}
}

func (s *Sequencer) QueueI2cRequest(req *I2cRequest) {
	req.init()
	s.closeLock.RLock()
	defer s.closeLock.RUnlock()
	if s.closed {
		req.Error = ErrSequencerClosed
		req.done = true
		return
	}
	s.queue <- req
}

func (s *Sequencer) I2cRequest(req *I2cRequest) {
	s.QueueI2cRequest(req)
	req.Wait()
}

func (s *Sequencer) I2cWrite(addr byte, data ...byte) error {
	req := &I2cRequest{
		Type:      I2cWrite,
		Addr:      addr,
		DataWrite: data,
	}
	s.I2cRequest(req)
	return req.Error
}

func (s *Sequencer) I2cRead(addr byte, data []byte) error {
	req := &I2cRequest{
		Type:     I2cRead,
		Addr:     addr,
		DataRead: data,
	}
	s.I2cRequest(req)
	return req.Error
}

func (s *Sequencer) I2cWriteRead(addr byte, out, in []byte) error {
	req := &I2cRequest{
		Type:      I2cWriteRead,
		Addr:      addr,
		DataRead:  in,
		DataWrite: out,
	}
	s.I2cRequest(req)
	return req.Error
}

func (s *Sequencer) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	req := &I2cRequest{
		Type:        I2cGet,
		Addr:        addr,
		GetRegister: registerAddr,
		GetSize:     size,
	}
	s.I2cRequest(req)
	return req.DataRead, req.Error
}
