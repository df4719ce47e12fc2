package redis

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerArrayCommand(t *testing.T) {
	raw := "*3\r\n$3\r\nset\r\n$4\r\nkey1\r\n$5\r\nhello\r\n"
	s := NewScanner(strings.NewReader(raw))

	cmd, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "SET", cmd.Name)
	assert.Equal(t, "key1", cmd.Arg)
	assert.Equal(t, []byte(raw), cmd.Raw)
}

func TestScannerMultipleCommands(t *testing.T) {
	raw := "*1\r\n$4\r\nPING\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"
	s := NewScanner(strings.NewReader(raw))

	cmd, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "PING", cmd.Name)
	assert.Empty(t, cmd.Arg)

	cmd, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "GET", cmd.Name)
	assert.Equal(t, "k", cmd.Arg)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestScannerInlineCommand(t *testing.T) {
	s := NewScanner(strings.NewReader("PING\r\nGET key1\r\n"))

	cmd, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "PING", cmd.Name)
	assert.Equal(t, []byte("PING\r\n"), cmd.Raw)

	cmd, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "GET", cmd.Name)
	assert.Equal(t, "key1", cmd.Arg)
}

func TestScannerBinaryPayloadPreserved(t *testing.T) {
	var raw bytes.Buffer
	raw.WriteString("*3\r\n$3\r\nSET\r\n$3\r\nbin\r\n$4\r\n")
	raw.Write([]byte{0x00, 0xff, 0x0d, 0x0a})
	raw.WriteString("\r\n")

	s := NewScanner(bytes.NewReader(raw.Bytes()))
	cmd, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "SET", cmd.Name)
	assert.Equal(t, raw.Bytes(), cmd.Raw)
}

func TestScannerUninspectableFallback(t *testing.T) {
	// An array header that is not followed by bulk strings.
	raw := "*2\r\n+OK\r\n+OK\r\n"
	s := NewScanner(strings.NewReader(raw))

	_, err := s.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUninspectable))

	// Nothing is lost when degrading to plain copy.
	rest, err := io.ReadAll(s.Buffered())
	require.NoError(t, err)
	assert.Equal(t, raw, string(rest))
}
