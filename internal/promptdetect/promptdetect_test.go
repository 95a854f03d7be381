package promptdetect

import "testing"

func osc(letter byte, payload string) string {
	s := "\x1b]133;" + string(letter)
	if payload != "" {
		s += ";" + payload
	}
	return s + "\x07"
}

func TestFeedPromptStart(t *testing.T) {
	d := New()
	buf := []byte(osc('A', ""))
	events := d.Feed(buf, 0)
	if len(events) != 1 || events[0].Kind != PromptStart {
		t.Fatalf("expected one PromptStart event, got %+v", events)
	}
	if events[0].Offset != 0 || events[0].Length != len(buf) {
		t.Errorf("unexpected offset/length: %+v", events[0])
	}
	if !d.OSCSeen() {
		t.Error("expected OSCSeen to be true after a real OSC 133 sequence")
	}
}

func TestFeedCommandStartParsesCommandAndCwd(t *testing.T) {
	d := New()
	buf := []byte(osc('B', "ls -la;cwd:/home/u"))
	events := d.Feed(buf, 100)
	if len(events) != 1 || events[0].Kind != CommandStart {
		t.Fatalf("expected one CommandStart event, got %+v", events)
	}
	ev := events[0]
	if ev.Command != "ls -la" || ev.Cwd != "/home/u" {
		t.Errorf("got command=%q cwd=%q", ev.Command, ev.Cwd)
	}
	if ev.Offset != 100 {
		t.Errorf("expected offset 100, got %d", ev.Offset)
	}
}

func TestFeedCommandStartEscapedSemicolons(t *testing.T) {
	d := New()
	buf := []byte(osc('B', `echo a\;b;cwd:/tmp`))
	events := d.Feed(buf, 0)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %+v", events)
	}
	if events[0].Command != "echo a;b" {
		t.Errorf("expected unescaped semicolon in command, got %q", events[0].Command)
	}
	if events[0].Cwd != "/tmp" {
		t.Errorf("expected cwd /tmp, got %q", events[0].Cwd)
	}
}

func TestFeedCommandEndParsesExitCode(t *testing.T) {
	d := New()
	buf := []byte(osc('D', "0"))
	events := d.Feed(buf, 0)
	if len(events) != 1 || events[0].Kind != CommandEnd {
		t.Fatalf("expected one CommandEnd event, got %+v", events)
	}
	if !events[0].HasExit || events[0].ExitCode != 0 {
		t.Errorf("expected exit code 0, got %+v", events[0])
	}
}

func TestFeedCommandEndNegativeExitCode(t *testing.T) {
	d := New()
	buf := []byte(osc('D', "-1"))
	events := d.Feed(buf, 0)
	if len(events) != 1 || !events[0].HasExit || events[0].ExitCode != -1 {
		t.Fatalf("expected exit code -1, got %+v", events)
	}
}

func TestFeedCommandEndNoExitCode(t *testing.T) {
	d := New()
	buf := []byte(osc('D', ""))
	events := d.Feed(buf, 0)
	if len(events) != 1 || events[0].HasExit {
		t.Fatalf("expected no exit code, got %+v", events)
	}
}

func TestFeedOutputStart(t *testing.T) {
	d := New()
	events := d.Feed([]byte(osc('C', "")), 0)
	if len(events) != 1 || events[0].Kind != OutputStart {
		t.Fatalf("expected one OutputStart event, got %+v", events)
	}
}

func TestFeedIgnoresUnknownLetter(t *testing.T) {
	d := New()
	events := d.Feed([]byte(osc('Z', "")), 0)
	if len(events) != 0 {
		t.Fatalf("expected no events for an unrecognized marker, got %+v", events)
	}
	if d.OSCSeen() {
		t.Error("an unrecognized marker must not flip OSCSeen")
	}
}

func TestFeedMixedPlainAndMarkerBytes(t *testing.T) {
	d := New()
	buf := []byte("hello " + osc('A', "") + " world")
	events := d.Feed(buf, 0)
	if len(events) != 1 || events[0].Kind != PromptStart {
		t.Fatalf("expected one PromptStart amid plain bytes, got %+v", events)
	}
	want := len("hello ")
	if events[0].Offset != want {
		t.Errorf("expected offset %d, got %d", want, events[0].Offset)
	}
}

func TestFeedAbandonsRunawaySequence(t *testing.T) {
	d := New()
	junk := make([]byte, 600)
	for i := range junk {
		junk[i] = 'x'
	}
	buf := append([]byte("\x1b]"), junk...)
	events := d.Feed(buf, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events from a runaway sequence, got %+v", events)
	}
	// the detector must have returned to idle and must still find a marker
	// fed afterward
	more := d.Feed([]byte(osc('A', "")), len(buf))
	if len(more) != 1 || more[0].Kind != PromptStart {
		t.Fatalf("expected detector to resynchronize, got %+v", more)
	}
}

func TestFeedSplitAcrossCalls(t *testing.T) {
	d := New()
	full := []byte(osc('B', "ls;cwd:/tmp"))
	mid := len(full) / 2
	events := d.Feed(full[:mid], 0)
	if len(events) != 0 {
		t.Fatalf("expected no events from a partial sequence, got %+v", events)
	}
	events = d.Feed(full[mid:], mid)
	if len(events) != 1 || events[0].Kind != CommandStart {
		t.Fatalf("expected the sequence to complete once fed the rest, got %+v", events)
	}
}

// --- fallback detector ---

func feedLine(d *Detector, s string, base int) (Event, bool) {
	var ev Event
	var matched bool
	for i := 0; i < len(s); i++ {
		ev, matched = d.FeedFallbackLine(s[i], base+i)
	}
	return ev, matched
}

func TestFallbackDetectsNewlineTerminatedPrompt(t *testing.T) {
	d := New()
	ev, matched := feedLine(d, "user@host:~$ \n", 0)
	if !matched {
		t.Fatal("expected newline-terminated prompt to match")
	}
	if ev.Kind != PromptDetected {
		t.Errorf("expected PromptDetected, got %+v", ev)
	}
}

func TestFallbackIgnoresOutputLine(t *testing.T) {
	d := New()
	_, matched := feedLine(d, "total 0\n", 0)
	if matched {
		t.Fatal("plain output line must not be detected as a prompt")
	}
}

func TestFallbackBarePromptNoTrailingNewline(t *testing.T) {
	d := New()
	// "$ " is never newline-terminated, so FeedFallbackLine alone never
	// fires; TestFallbackPartial is what scenario-1-style interactive
	// prompts rely on.
	for i := 0; i < len("$ "); i++ {
		_, matched := d.FeedFallbackLine("$ "[i], i)
		if matched {
			t.Fatalf("did not expect a match mid-line at byte %d", i)
		}
	}
	ev, matched := d.TestFallbackPartial()
	if !matched {
		t.Fatal("expected TestFallbackPartial to detect a bare \"$ \" prompt")
	}
	if ev.Kind != PromptDetected {
		t.Errorf("expected PromptDetected, got %+v", ev)
	}
}

func TestFallbackRejectsLoneSigil(t *testing.T) {
	d := New()
	for i := 0; i < len("$"); i++ {
		d.FeedFallbackLine("$"[i], i)
	}
	if _, matched := d.TestFallbackPartial(); matched {
		t.Fatal("a bare single-character \"$\" must not match (anti-false-positive floor)")
	}
}

func TestFallbackStripsCSIBeforeMatching(t *testing.T) {
	d := New()
	line := "\x1b[1;32muser@host\x1b[0m:~$ "
	for i := 0; i < len(line); i++ {
		d.FeedFallbackLine(line[i], i)
	}
	if _, matched := d.TestFallbackPartial(); !matched {
		t.Fatal("expected a colorized prompt to match once CSI sequences are stripped")
	}
}

func TestResetFallbackLineClearsBuffer(t *testing.T) {
	d := New()
	feedLine(d, "abc$ ", 0)
	d.ResetFallbackLine()
	if _, matched := d.TestFallbackPartial(); matched {
		t.Fatal("expected no match against an empty buffer after reset")
	}
}
