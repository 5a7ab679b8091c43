package client

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

type result struct {
	resp *protocol.Response
	err  error
}

// session is the lifetime of one transport. Each session has its own
// pending table, so a reconnect never delivers into a previous session's
// waiters.
type session struct {
	transport     transport.Transport
	transportType string
	endpoint      string

	ctx    context.Context
	cancel context.CancelFunc

	pendingMu       sync.Mutex
	pendingRequests map[string]chan result
	closed          bool
	closeErr        error

	readerDone  chan struct{}
	closeOnce   sync.Once
	shutdownErr error
}

func newSession(tr transport.Transport, config transport.Config) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		transport:       tr,
		transportType:   string(config.Type),
		endpoint:        config.Endpoint(),
		ctx:             ctx,
		cancel:          cancel,
		pendingRequests: make(map[string]chan result),
		readerDone:      make(chan struct{}),
	}
}

func (s *session) register(id string) (chan result, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.closed {
		return nil, s.closeErr
	}
	ch := make(chan result, 1)
	s.pendingRequests[id] = ch
	return ch, nil
}

func (s *session) remove(id string) {
	s.pendingMu.Lock()
	delete(s.pendingRequests, id)
	s.pendingMu.Unlock()
}

// deliver hands resp to its waiter. The first delivery removes the entry,
// so late or duplicate responses report false.
func (s *session) deliver(resp *protocol.Response) bool {
	key := protocol.IDKey(resp.ID)

	s.pendingMu.Lock()
	ch, ok := s.pendingRequests[key]
	if ok {
		delete(s.pendingRequests, key)
	}
	s.pendingMu.Unlock()

	if !ok {
		return false
	}
	ch <- result{resp: resp}
	return true
}

func (s *session) failPending(err error) {
	s.pendingMu.Lock()
	s.closed = true
	s.closeErr = err
	pending := s.pendingRequests
	s.pendingRequests = make(map[string]chan result)
	s.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
}

func (s *session) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pendingRequests)
}

func (s *session) isClosed() bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.closed
}

func (s *session) closeError() error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.closeErr
}

// shutdown closes the transport and waits for the reader to fail the
// pending requests.
func (s *session) shutdown() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.shutdownErr = s.transport.Close()
		<-s.readerDone
	})
	return s.shutdownErr
}
