package assemble

import "testing"

func TestHeuristicCounter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "one token", text: "abcd", want: 1},
		{name: "rounds up", text: "abcde", want: 2},
		{name: "longer text", text: "twelve chars", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicCounter{}.Count(tt.text)
			if got != tt.want {
				t.Fatalf("unexpected count: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokenCounterFunc(t *testing.T) {
	counter := TokenCounterFunc(func(text string) int { return len(text) })
	if got := counter.Count("abc"); got != 3 {
		t.Fatalf("unexpected count: got %d, want 3", got)
	}
}

func TestDefaultTokenCounterNeverNil(t *testing.T) {
	counter := DefaultTokenCounter()
	if counter == nil {
		t.Fatal("expected a counter")
	}
	if got := counter.Count(""); got != 0 {
		t.Fatalf("unexpected count for empty text: got %d, want 0", got)
	}
}
