package medication

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUnreadable(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"The handwriting is too blurry to identify medications", true},
		{"Illegible, cannot read handwriting", true},
		{"I CAN'T MAKE OUT the second line", true},
		{"The image has poor quality lighting", true},
		{"Patient should take 500mg twice daily", false},
		{"Paracetamol 750mg, 1 tablet every 6 hours", false},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsUnreadable(tc.text), "text=%q", tc.text)
	}
}
