// Package redis implements the Redis proxy: traffic is forwarded verbatim
// while a best-effort RESP scanner lifts command names off the client stream
// for the audit trail.
package redis

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrUninspectable marks a client stream the scanner cannot follow. The
// proxy degrades to plain copying; forwarding is never interrupted by a
// parse failure.
var ErrUninspectable = errors.New("resp: uninspectable stream")

// maxBulkLen bounds a single bulk string the scanner will buffer.
const maxBulkLen = 512 << 20 // redis proto hard limit

// Command is one parsed client command: the name, an optional first
// argument, and the exact bytes that encoded it.
type Command struct {
	Name string
	Arg  string
	Raw  []byte
}

// Scanner incrementally parses RESP commands off a client stream while
// retaining the raw bytes for forwarding.
type Scanner struct {
	r   *bufio.Reader
	raw bytes.Buffer
}

// NewScanner wraps the client side of a connection.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Buffered returns the bytes consumed by a failed parse followed by the
// rest of the stream. Used when degrading to plain copy so no bytes are
// lost.
func (s *Scanner) Buffered() io.Reader {
	return io.MultiReader(bytes.NewReader(s.raw.Bytes()), s.r)
}

// Next reads one complete command. Raw always holds exactly the consumed
// bytes, so writing Raw to the backend preserves the stream bit-exactly.
func (s *Scanner) Next() (*Command, error) {
	s.raw.Reset()

	first, err := s.peekByte()
	if err != nil {
		return nil, err
	}

	if first == '*' {
		return s.readArray()
	}
	return s.readInline()
}

// readArray parses `*N\r\n` followed by N bulk strings.
func (s *Scanner) readArray() (*Command, error) {
	line, err := s.readLine()
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(string(line[1:]))
	if err != nil || count < 1 {
		return nil, ErrUninspectable
	}

	cmd := &Command{}
	for i := 0; i < count; i++ {
		arg, err := s.readBulk()
		if err != nil {
			return nil, err
		}
		switch i {
		case 0:
			cmd.Name = strings.ToUpper(arg)
		case 1:
			cmd.Arg = arg
		}
	}

	cmd.Raw = append([]byte(nil), s.raw.Bytes()...)
	return cmd, nil
}

// readBulk parses one `$len\r\n<bytes>\r\n` element.
func (s *Scanner) readBulk() (string, error) {
	line, err := s.readLine()
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[0] != '$' {
		return "", ErrUninspectable
	}
	length, err := strconv.Atoi(string(line[1:]))
	if err != nil || length < 0 || length > maxBulkLen {
		return "", ErrUninspectable
	}

	payload := make([]byte, length+2)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return "", err
	}
	s.raw.Write(payload)
	if payload[length] != '\r' || payload[length+1] != '\n' {
		return "", ErrUninspectable
	}
	return string(payload[:length]), nil
}

// readInline parses the legacy space-separated inline form.
func (s *Scanner) readInline() (*Command, error) {
	line, err := s.readLine()
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return nil, ErrUninspectable
	}

	cmd := &Command{Name: strings.ToUpper(fields[0])}
	if len(fields) > 1 {
		cmd.Arg = fields[1]
	}
	cmd.Raw = append([]byte(nil), s.raw.Bytes()...)
	return cmd, nil
}

// readLine consumes through \r\n, recording the raw bytes and returning the
// line without the terminator.
func (s *Scanner) readLine() ([]byte, error) {
	line, err := s.r.ReadBytes('\n')
	s.raw.Write(line)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: bare LF line", ErrUninspectable)
	}
	return line[:len(line)-2], nil
}

func (s *Scanner) peekByte() (byte, error) {
	b, err := s.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
