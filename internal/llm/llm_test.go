package llm

import (
	"context"
	"testing"
)

func TestDummyBackendEchoesQuery(t *testing.T) {
	b := NewDummyBackend()
	out, err := b.Complete(context.Background(), "some context", "what failed?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty reply")
	}
}

func TestDummyBackendEmptyQueryYieldsEmpty(t *testing.T) {
	b := NewDummyBackend()
	out, err := b.Complete(context.Background(), "ctx", "   ")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty reply for blank query, got %q", out)
	}
}

func TestNewDefaultsToDummy(t *testing.T) {
	b, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Name() != "dummy" {
		t.Fatalf("Name() = %q, want dummy", b.Name())
	}
}

func TestNewUnknownKindErrors(t *testing.T) {
	if _, err := New(Config{Kind: "bogus"}); err == nil {
		t.Fatal("expected error for unknown backend kind")
	}
}

func TestParseSuggestionsPlainArray(t *testing.T) {
	reply := `[{"text":"status","confidence":0.9},{"text":"stash","confidence":0.4}]`
	got, err := ParseSuggestions(reply)
	if err != nil {
		t.Fatalf("ParseSuggestions: %v", err)
	}
	if len(got) != 2 || got[0].Text != "status" {
		t.Errorf("got %+v", got)
	}
}

func TestParseSuggestionsToleratesSurroundingProse(t *testing.T) {
	reply := "Sure, here you go:\n[{\"text\":\"push\",\"confidence\":0.8}]\nHope that helps!"
	got, err := ParseSuggestions(reply)
	if err != nil {
		t.Fatalf("ParseSuggestions: %v", err)
	}
	if len(got) != 1 || got[0].Text != "push" {
		t.Errorf("got %+v", got)
	}
}

func TestParseSuggestionsCapsAtThree(t *testing.T) {
	reply := `[{"text":"a","confidence":0.1},{"text":"b","confidence":0.2},{"text":"c","confidence":0.3},{"text":"d","confidence":0.4}]`
	got, err := ParseSuggestions(reply)
	if err != nil {
		t.Fatalf("ParseSuggestions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
}

func TestParseSuggestionsNoArrayErrors(t *testing.T) {
	if _, err := ParseSuggestions("no json here"); err == nil {
		t.Fatal("expected error when no array present")
	}
}
