package glob

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"user:*", "user:1", true},
		{"user:*", "user:", true},
		{"user:*", "order:1", false},
		{"user:*", "xuser:1", false},
		{"user:?", "user:1", true},
		{"user:?", "user:12", false},
		{"user:?", "user:", false},
		{"*", "anything", true},
		{"*", "", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"a*b?c", "aXXbYc", true},
		{"a*b?c", "abYc", true},
		{"a*b?c", "abc", false},
		{"cache:user:*", "cache:user:42", true},
		{"c.a+e", "c.a+e", true},
		{"c.a+e", "cXaae", false},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.name); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestCompileAnchored(t *testing.T) {
	re, err := Compile("user:*")
	if err != nil {
		t.Fatalf("Compile() returned error: %v", err)
	}

	if re.MatchString("prefix user:1 suffix") {
		t.Error("Expected anchored pattern not to match substrings")
	}
}
