package transport

import (
	"net"
	"sync"
)

// PipeTransport is an in-process Transport built on net.Pipe, used by
// tests and by callers that don't need a real remote host. Every pair
// NewPair returns is independent; AddClient/SetControl only record
// membership for assertions.
type PipeTransport struct {
	mu       sync.Mutex
	clients  []net.Conn
	controls map[net.Conn]bool
	started  bool
}

// NewPipe returns a ready-to-use PipeTransport.
func NewPipe() *PipeTransport {
	return &PipeTransport{controls: make(map[net.Conn]bool)}
}

func (p *PipeTransport) NewPair() (net.Conn, net.Conn, error) {
	client, host := net.Pipe()
	return client, host, nil
}

func (p *PipeTransport) AddClient(host net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = append(p.clients, host)
	return nil
}

func (p *PipeTransport) SetControl(host net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if c == host {
			p.controls[host] = true
			return nil
		}
	}
	return ErrNotControl
}

// IsControl reports whether host was marked via SetControl; it exists
// for tests asserting control-set membership.
func (p *PipeTransport) IsControl(host net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controls[host]
}

func (p *PipeTransport) Reload() error {
	return nil
}

func (p *PipeTransport) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *PipeTransport) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	for _, c := range p.clients {
		c.Close()
	}
	p.clients = nil
	return nil
}
