package deploy

import (
	"sync"

	"github.com/pkg/errors"
)

type State int

const (
	StateInit State = iota
	StateWriting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var transitions = map[State][]State{
	StateInit:       {StateWriting, StateFailed},
	StateWriting:    {StateFinalizing, StateFailed},
	StateFinalizing: {StateDone, StateFailed},
}

var ErrInvalidTransition = errors.New("invalid state transition")

// Chunk is a slice of the program binary destined for Offset in the buffer.
type Chunk struct {
	Offset int
	Data   []byte
}

// Session tracks the progress of a single deployment. Chunks are handed out
// in increasing offset order and may be confirmed in any order; the session
// only allows finalizing once every byte has been confirmed.
type Session struct {
	sync.Mutex

	binary    []byte
	chunkSize int

	state   State
	offset  int
	written int
	err     error
}

func NewSession(binary []byte, chunkSize int) (*Session, error) {
	if len(binary) == 0 {
		return nil, ErrEmptyBinary
	}
	if chunkSize <= 0 {
		return nil, errors.Errorf("invalid chunk size %d", chunkSize)
	}

	return &Session{
		binary:    binary,
		chunkSize: chunkSize,
	}, nil
}

func (s *Session) State() State {
	s.Lock()
	defer s.Unlock()
	return s.state
}

// Offset is the start of the next chunk to be handed out.
func (s *Session) Offset() int {
	s.Lock()
	defer s.Unlock()
	return s.offset
}

// Err is the failure that moved the session to StateFailed.
func (s *Session) Err() error {
	s.Lock()
	defer s.Unlock()
	return s.err
}

// Complete reports whether every chunk has been written and confirmed.
func (s *Session) Complete() bool {
	s.Lock()
	defer s.Unlock()
	return s.written == len(s.binary)
}

// NextChunk hands out the chunk at the current offset and advances it. It
// returns false once the whole binary has been handed out.
func (s *Session) NextChunk() (Chunk, bool, error) {
	s.Lock()
	defer s.Unlock()

	if s.state != StateWriting {
		return Chunk{}, false, errors.Wrapf(ErrInvalidTransition, "cannot write chunks while %s", s.state)
	}
	if s.offset >= len(s.binary) {
		return Chunk{}, false, nil
	}

	end := min(s.offset+s.chunkSize, len(s.binary))
	chunk := Chunk{Offset: s.offset, Data: s.binary[s.offset:end]}
	s.offset = end
	return chunk, true, nil
}

// Confirm records that chunk has been written to the buffer.
func (s *Session) Confirm(chunk Chunk) error {
	s.Lock()
	defer s.Unlock()

	if s.state != StateWriting {
		return errors.Wrapf(ErrInvalidTransition, "cannot confirm chunks while %s", s.state)
	}
	if chunk.Offset+len(chunk.Data) > s.offset {
		return errors.Errorf("chunk at offset %d was never handed out", chunk.Offset)
	}

	s.written += len(chunk.Data)
	return nil
}

func (s *Session) BeginWriting() error {
	return s.transition(StateWriting)
}

// BeginFinalizing refuses to proceed while any chunk is unconfirmed.
func (s *Session) BeginFinalizing() error {
	s.Lock()
	defer s.Unlock()

	if s.state == StateWriting && s.written != len(s.binary) {
		return errors.Wrapf(ErrInvalidTransition, "only %d of %d bytes written", s.written, len(s.binary))
	}
	return s.transitionLocked(StateFinalizing)
}

func (s *Session) Finish() error {
	return s.transition(StateDone)
}

// Fail moves the session to StateFailed. The first failure is retained.
func (s *Session) Fail(err error) {
	s.Lock()
	defer s.Unlock()

	if s.state == StateDone || s.state == StateFailed {
		return
	}
	s.state = StateFailed
	s.err = err
}

func (s *Session) transition(to State) error {
	s.Lock()
	defer s.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, to)
}
