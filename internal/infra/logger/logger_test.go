package logger

import "testing"

func TestMaskString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "***"},
		{"abcd", "***"},
		{"abcdef", "ab***ef"},
		{"2f7a9c1b4d", "2f***4d"},
	}

	for _, tc := range cases {
		if got := MaskString(tc.in); got != tc.want {
			t.Fatalf("MaskString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
