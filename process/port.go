package process

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// DefaultBasePort is where a PortAllocator starts when none is given.
const DefaultBasePort = 51150

const maxPort = 65535

// ErrNoPort is returned when the allocator ran past the last port.
var ErrNoPort = errors.New("no free port left")

// PortAllocator hands out local ports for engine servers. Allocation is
// monotonic: a port is never handed out twice by the same allocator, even
// after the engine using it has exited. Ports that are in use when their
// turn comes are skipped.
//
// A PortAllocator is safe for concurrent use.
type PortAllocator struct {
	mu   sync.Mutex
	host string
	next int
}

// NewPortAllocator returns an allocator whose first candidate is base; zero
// means DefaultBasePort.
func NewPortAllocator(base int) *PortAllocator {
	if base <= 0 {
		base = DefaultBasePort
	}
	return &PortAllocator{host: "127.0.0.1", next: base}
}

// Next returns the next free port.
func (a *PortAllocator) Next() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for a.next <= maxPort {
		p := a.next
		a.next++
		if available(a.host, p) {
			return p, nil
		}
	}
	return 0, ErrNoPort
}

// FreePort asks the operating system for an unused port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func available(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
