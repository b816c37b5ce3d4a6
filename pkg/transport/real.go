package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/normalizer"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/jacobsa/go-serial/serial"
)

// Longest partial line kept across read timeouts.
const maxLineLength = 4096

// OpenSerialPort opens the device 8N1 with a one second read timeout.
func OpenSerialPort(address string, rate int) (io.ReadWriteCloser, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", rate)
	}

	options := serial.OpenOptions{
		PortName:              address,
		BaudRate:              uint(rate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(ReadTimeout.Milliseconds()),
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

type realTransport struct {
	port     io.ReadWriteCloser
	recorder Recorder
	closed   atomic.Bool

	readMu  sync.Mutex
	reader  *bufio.Reader
	pending []byte

	writeMu sync.Mutex
}

func newRealTransport(port io.ReadWriteCloser, recorder Recorder) *realTransport {
	return &realTransport{
		port:     port,
		recorder: recorder,
		reader:   bufio.NewReader(port),
	}
}

func (t *realTransport) Receive(ctx context.Context) (types.Reading, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Reading{}, false, err
	}

	line, err := t.readLine()
	if err != nil {
		var transient *TransientIOError
		if errors.As(err, &transient) {
			return types.Reading{}, false, nil
		}
		return types.Reading{}, false, err
	}

	reading, err := normalizer.DecodeLine(line)
	if errors.Is(err, normalizer.ErrEmptyLine) {
		return types.Reading{}, false, nil
	}
	if err != nil {
		t.recorder.DecodeFailed()
		log.Printf("Invalid record, skipping: %v", err)
		return types.Reading{}, false, nil
	}
	return reading, true, nil
}

func (t *realTransport) SendText(msg string) (bool, error) {
	if t.closed.Load() {
		return false, ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.port.Write([]byte(msg)); err != nil {
		log.Printf("Error sending text to serial port: %v", err)
		return false, fmt.Errorf("failed to write to serial port: %w", err)
	}
	return true, nil
}

// ReceiveText reads one raw line. Read problems are logged and yield "".
func (t *realTransport) ReceiveText() (string, error) {
	line, err := t.readLine()
	if err != nil {
		if errors.Is(err, ErrTransportClosed) {
			return "", err
		}
		var transient *TransientIOError
		if !errors.As(err, &transient) {
			log.Printf("Error receiving text: %v", err)
		}
		return "", nil
	}
	return string(bytes.TrimSpace(line)), nil
}

func (t *realTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	log.Println("Disconnected from sensor gateway")
	return t.port.Close()
}

// readLine returns one complete line. Bytes read before a timeout are kept
// for the next call so a slow line is not split into two records.
func (t *realTransport) readLine() ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	chunk, err := t.reader.ReadBytes('\n')
	t.pending = append(t.pending, chunk...)
	if len(t.pending) > maxLineLength {
		dropped := len(t.pending)
		t.pending = nil
		t.recorder.DecodeFailed()
		log.Printf("Discarding %d bytes without line terminator", dropped)
	}

	if err != nil {
		if t.closed.Load() {
			return nil, ErrTransportClosed
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, &TransientIOError{Err: err}
		}
		t.recorder.ReadFailed()
		return nil, fmt.Errorf("serial read failed: %w", err)
	}

	line := t.pending
	t.pending = nil
	return line, nil
}
