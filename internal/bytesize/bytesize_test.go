package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	cases := map[string]ByteSize{
		"0":       0,
		"1024":    1024,
		"1024B":   1024,
		"1Ki":     KiB,
		"1KiB":    KiB,
		"100Mi":   100 * MiB,
		"1Gi":     GiB,
		"1gi":     GiB,
		"1TiB":    TiB,
		"1K":      KB,
		"100MB":   100 * MB,
		"500mb":   500 * MB,
		"1GB":     GB,
		"1T":      TB,
		"1.5Gi":   GiB + 512*MiB,
		"0.5Gi":   512 * MiB,
		"  1Gi  ": GiB,
		"1 Gi":    GiB,
	}
	for input, want := range cases {
		got, err := ParseByteSize(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestParseByteSizeErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "Gi", "1Xi", "-5Mi", "1..5Gi"} {
		_, err := ParseByteSize(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("100MB")))
	assert.Equal(t, 100*MB, b)

	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.00KiB", KiB.String())
	assert.Equal(t, "1.50GiB", (GiB + 512*MiB).String())
}

func TestInt64(t *testing.T) {
	assert.Equal(t, int64(1<<20), MiB.Int64())
}
