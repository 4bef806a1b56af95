//go:build linux

package utils

import "testing"

func TestQuoteExecArg(t *testing.T) {
	cases := map[string]string{
		"/usr/bin/daemon":    "/usr/bin/daemon",
		"/home/me/my apps/d": `"/home/me/my apps/d"`,
		`/tmp/with"quote`:    `"/tmp/with\"quote"`,
		"/opt/$HOME/d":       `"/opt/\$HOME/d"`,
	}
	for in, want := range cases {
		if got := quoteExecArg(in); got != want {
			t.Errorf("quoteExecArg(%q) = %q, want %q", in, got, want)
		}
	}
}
