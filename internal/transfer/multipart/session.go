package multipart

import (
	"fmt"
	"sync"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/s3types"
)

// transitions lists the states reachable from each non-terminal state.
var transitions = map[s3types.SessionState][]s3types.SessionState{
	s3types.StateCreated:   {s3types.StateChunking, s3types.StateAborted},
	s3types.StateChunking:  {s3types.StateUploading, s3types.StateAborted},
	s3types.StateUploading: {s3types.StateVerifying, s3types.StateAborted},
	s3types.StateVerifying: {s3types.StateCompleted, s3types.StateAborted},
}

// Session is one multipart upload on the store.
type Session struct {
	// ID is the store's upload ID
	ID string

	Bucket string
	Key    string

	mu      sync.Mutex
	state   s3types.SessionState
	history []s3types.SessionState
}

func newSession(id, bucket, key string) *Session {
	return &Session{
		ID:      id,
		Bucket:  bucket,
		Key:     key,
		state:   s3types.StateCreated,
		history: []s3types.SessionState{s3types.StateCreated},
	}
}

// State returns the current state.
func (s *Session) State() s3types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state visited, oldest first.
func (s *Session) History() []s3types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]s3types.SessionState(nil), s.history...)
}

// transition moves the session to the next state. Terminal states are final
// and a state is never re-entered.
func (s *Session) transition(to s3types.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			s.history = append(s.history, to)
			return nil
		}
	}

	return errors.New("transition", errors.KindInternal,
		fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, s.state, to)).
		WithBucket(s.Bucket).
		WithKey(s.Key)
}
