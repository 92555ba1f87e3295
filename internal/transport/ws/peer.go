package ws

import (
	"sync"
	"sync/atomic"

	"skirmish.ai/internal/sim/match"
)

// peer is the lobby's handle on one connection. Send never blocks: when the
// writer falls behind, the oldest queued message is dropped.
type peer struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	closed bool

	dropped atomic.Uint64
}

func newPeer(id string, queue int) *peer {
	if queue <= 0 {
		queue = 32
	}
	return &peer{id: id, out: make(chan []byte, queue)}
}

func (p *peer) ID() string { return p.id }

func (p *peer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return match.ErrPeerClosed
	}
	for {
		select {
		case p.out <- b:
			return nil
		default:
		}
		select {
		case <-p.out:
			p.dropped.Add(1)
		default:
		}
	}
}

// close marks the peer gone. Queued messages are abandoned.
func (p *peer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *peer) Dropped() uint64 { return p.dropped.Load() }
