package util

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != time.Second {
		t.Errorf("after reset: got %v, want %v", got, time.Second)
	}
}

func TestBoundedBuffer(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{"fits", []string{"abc", "de"}, "abcde"},
		{"drops oldest", []string{"abcd", "efg"}, "cdefg"},
		{"oversized write keeps tail", []string{"ab", "0123456789"}, "56789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoundedBuffer(5)
			for _, w := range tt.writes {
				if n, err := b.Write([]byte(w)); err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := b.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateOneOf(t *testing.T) {
	if err := ValidateOneOf("strategy", "spring", "spring", "exponential"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateOneOf("strategy", "linear", "spring", "exponential")
	if err == nil {
		t.Fatal("expected error for unknown value")
	}
	if err.Field != "strategy" {
		t.Errorf("field = %q, want strategy", err.Field)
	}
}
