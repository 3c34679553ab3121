package ingestion

import "testing"

func TestLooksLikeQuestion(t *testing.T) {
	tests := []struct {
		title    string
		expected bool
	}{
		{"How do I fine-tune a model?", true},
		{"why is my loss exploding", true},
		{"Is this normal behavior", true},
		{"The model stopped responding?", true},
		{"[Question] about context windows", true},
		{"[Help] tokenizer crashes on emoji", true},
		{"ELI5: what is an embedding", true},
		{"My new benchmark results", false},
		{"Released: llama.cpp v2", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := looksLikeQuestion(tt.title); got != tt.expected {
			t.Errorf("looksLikeQuestion(%q) = %v, expected %v", tt.title, got, tt.expected)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	if got := cleanTitle("  hello world \n"); got != "hello world" {
		t.Errorf("cleanTitle = %q, expected %q", got, "hello world")
	}
}
