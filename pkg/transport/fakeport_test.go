package transport

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// fakePort behaves like a serial device opened with a read timeout:
// Read returns (0, io.EOF) when no chunk arrives in time.
type fakePort struct {
	chunks  chan []byte
	timeout time.Duration

	mu      sync.Mutex
	buf     []byte
	written bytes.Buffer
	closed  chan struct{}
	once    sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		chunks:  make(chan []byte, 64),
		timeout: 20 * time.Millisecond,
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) feed(s string) {
	p.chunks <- []byte(s)
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	case chunk := <-p.chunks:
		n := copy(b, chunk)
		p.mu.Lock()
		p.buf = append(p.buf, chunk[n:]...)
		p.mu.Unlock()
		return n, nil
	case <-time.After(p.timeout):
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *fakePort) writtenString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func openerFor(port *fakePort) PortOpener {
	return func(address string, rate int) (io.ReadWriteCloser, error) {
		return port, nil
	}
}
