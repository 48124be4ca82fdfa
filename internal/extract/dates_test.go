package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"slash month first", "01/15/2024", "2024-01-15"},
		{"slash day first", "15/01/2024", "2024-01-15"},
		{"dash month first", "01-15-2024", "2024-01-15"},
		{"dash day first", "15-01-2024", "2024-01-15"},
		{"two digit year", "01/15/24", "2024-01-15"},
		{"two digit year dash", "01-15-24", "2024-01-15"},
		{"ambiguous prefers month first", "03/04/2024", "2024-03-04"},
		{"unparseable stays unchanged", "2024 March 1", "2024 March 1"},
		{"garbage stays unchanged", "not-a-date", "not-a-date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeDate(tc.in))
		})
	}
}
