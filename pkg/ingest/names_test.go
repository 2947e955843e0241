package ingest

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sávio Moreira", "savio moreira"},
		{"SAVIO  moreira ", "savio moreira"},
		{"Kylian Mbappé", "kylian mbappe"},
		{"N'Golo Kanté", "n'golo kante"},
		{"Ole Sæter", "ole sæter"}, // æ is a letter, kept
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
