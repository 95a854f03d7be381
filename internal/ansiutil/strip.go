// Package ansiutil strips ANSI CSI/OSC escape sequences from terminal bytes
// for context-assembly rendering (internal/ansirender).
package ansiutil

import "regexp"

// csiRe matches CSI sequences: ESC [ params intermediate final.
var csiRe = regexp.MustCompile("\x1b\\[[0-9;?]*[ -/]*[@-~]")

// oscRe matches OSC sequences terminated by BEL or ST (ESC \).
var oscRe = regexp.MustCompile("\x1b\\][^\x07]*(\x07|\x1b\\\\)")

// otherEscRe matches the remaining two-byte escape sequences (e.g. ESC = or ESC M).
var otherEscRe = regexp.MustCompile("\x1b[()#][0-9A-Za-z]|\x1b[=>NOMcD78]")

// Strip removes CSI/OSC/two-byte escape sequences from b, returning plain text.
func Strip(b []byte) string {
	s := string(b)
	s = oscRe.ReplaceAllString(s, "")
	s = csiRe.ReplaceAllString(s, "")
	s = otherEscRe.ReplaceAllString(s, "")
	return s
}
