package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFolderPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", ""},
		{"", ""},
		{"/pics", "pics"},
		{"/pics/", "pics"},
		{"/pics/2026", "pics/2026"},
		{"pics", "pics"},
		{"/a/../../etc", "etc"},
		{"..", ""},
		{"/../..", ""},
		{"//double//slash", "double/slash"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeFolderPath(c.in), "input %q", c.in)
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "pics/abc.jpg", ObjectKey("/pics", "abc", "jpg"))
	assert.Equal(t, "abc.jpg", ObjectKey("/", "abc", "jpg"))
	assert.Equal(t, "abc", ObjectKey("/", "abc", ""))
	assert.Equal(t, "etc/abc.txt", ObjectKey("/a/../../etc", "abc", "txt"))
}
