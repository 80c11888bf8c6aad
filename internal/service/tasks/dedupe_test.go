package tasks

import (
	"reflect"
	"testing"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		in       []string
		splitter bool
		want     []string
	}{
		{
			name:     "no splitter collapses to longest",
			in:       []string{"buy some milk", "buy some milk today"},
			splitter: false,
			want:     []string{"buy some milk today"},
		},
		{
			name:     "no splitter ties keep first",
			in:       []string{"abc", "xyz"},
			splitter: false,
			want:     []string{"abc"},
		},
		{
			name:     "distinct tasks kept in order",
			in:       []string{"buy milk", "call mom", "walk the dog"},
			splitter: true,
			want:     []string{"buy milk", "call mom", "walk the dog"},
		},
		{
			name:     "similar titles keep the longer at first position",
			in:       []string{"buy milk", "call mom", "buy milk today"},
			splitter: true,
			want:     []string{"buy milk today", "call mom"},
		},
		{
			name:     "longer first is kept over later shorter",
			in:       []string{"walk the dog tonight", "walk the dog"},
			splitter: true,
			want:     []string{"walk the dog tonight"},
		},
		{
			name:     "case-insensitive exact duplicates",
			in:       []string{"Call Mom", "call mom"},
			splitter: true,
			want:     []string{"Call Mom"},
		},
		{
			name:     "short candidates dropped",
			in:       []string{"a", "x", "water plants"},
			splitter: true,
			want:     []string{"water plants"},
		},
		{
			name:     "below threshold stays separate",
			in:       []string{"buy milk at store", "call the store now"},
			splitter: true,
			want:     []string{"buy milk at store", "call the store now"},
		},
		{
			name:     "single candidate without splitter",
			in:       []string{"i need to buy milk"},
			splitter: false,
			want:     []string{"i need to buy milk"},
		},
		{
			name:     "empty",
			in:       nil,
			splitter: true,
			want:     []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.in, tt.splitter)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dedupe(%v, %v) = %#v, want %#v", tt.in, tt.splitter, got, tt.want)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"buy milk", "buy milk today", true},
		{"Buy Milk", "milk buy", true},
		{"buy milk", "call mom", false},
		{"pick up kids", "pick up groceries", true},
		{"pick up the kids", "drop off the kids", false},
		{"", "anything", false},
	}
	for _, tt := range tests {
		if got := Similar(tt.a, tt.b); got != tt.want {
			t.Errorf("Similar(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
