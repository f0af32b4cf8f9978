package lpr

import "testing"

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ab 123 cd", "AB123CD"},
		{"AB-123-CD", "AB123CD"},
		{"12가 3456", "12가3456"},
		{" 34나5678 ", "34나5678"},
		{"ab_123.cd", "AB123CD"},
		{"", ""},
		{"!!??", ""},
	}

	for _, tt := range tests {
		if got := NormalizePlate(tt.raw); got != tt.want {
			t.Errorf("NormalizePlate(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
