package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"foobar@example.com", "fo***@example.com"},
		{"ab@ex.com", "***@ex.com"},
		{"no-at-here", "***"},
		{"a@b@c", "***"},
		{"", "***"},
		{"abc.def+tag@EXAMPLE.org", "ab***@EXAMPLE.org"},
		{"юзер@пример.рф", "юз***@пример.рф"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	require.Empty(t, Fingerprint(""))

	a := Fingerprint("refresh-a")
	require.Len(t, a, 8)
	require.Equal(t, a, Fingerprint("refresh-a"))
	require.NotEqual(t, a, Fingerprint("refresh-b"))
	require.NotContains(t, a, "refresh")
}
