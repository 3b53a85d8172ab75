package device

import (
	"bytes"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ReadTimeout bounds how long ReadLines waits for more bytes
const ReadTimeout = 5 * time.Second

// Serial is a Device backed by a serial port
type Serial struct {
	port serial.Port
	name string
}

// OpenSerial opens a serial port with 8N1 framing
func OpenSerial(name string, baud int) (*Serial, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}

	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Serial{port: port, name: name}, nil
}

func (s *Serial) Write(cmd []byte) error {
	if _, err := s.port.Write(cmd); err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

// ReadLines reads until the port stays silent for ReadTimeout
func (s *Serial) ReadLines() ([][]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 256)

	for {
		n, err := s.port.Read(chunk)
		if err != nil {
			return SplitLines(buf.Bytes()), fmt.Errorf("read %s: %w", s.name, err)
		}
		if n == 0 {
			break
		}
		buf.Write(chunk[:n])
	}

	return SplitLines(buf.Bytes()), nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// SplitLines cuts data after every '\n'. A trailing partial line is kept.
func SplitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, bytes.Clone(data))
			break
		}
		lines = append(lines, bytes.Clone(data[:i+1]))
		data = data[i+1:]
	}
	return lines
}
