package tokens

import "testing"

func TestCountNonEmpty(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	if got := c.Count("gg wp everyone, nice round"); got == 0 {
		t.Error("Count returned 0 for non-empty text")
	}
}

func TestCountEmpty(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountMonotonicInLength(t *testing.T) {
	c := NewCounter("gpt-3.5-turbo")
	short := c.Count("gg")
	long := c.Count("gg wp everyone that was a genuinely great round of competitive play")
	if long <= short {
		t.Errorf("longer text counted %d tokens, shorter %d", long, short)
	}
}

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", "o200k_base"},
		{"gpt-4", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"something-future", "o200k_base"},
	}
	for _, tt := range tests {
		if got := string(encodingFor(tt.model)); got != tt.want {
			t.Errorf("encodingFor(%s) = %s, want %s", tt.model, got, tt.want)
		}
	}
}
