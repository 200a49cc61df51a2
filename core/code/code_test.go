package code

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		prefix string
		value  int64
		want   string
	}{
		{"CON", 7, "CON-007"},
		{"CON", 0, "CON-000"},
		{"MGR", 42, "MGR-042"},
		{"CON", 999, "CON-999"},
		{"CON", 1000, "CON-1000"},
		{"CON", 1042, "CON-1042"},
		{"CON", -5, "CON-000"},
		{"WHS", 9223372036854775807, "WHS-9223372036854775807"},
	}

	for _, tt := range tests {
		if got := Format(tt.prefix, tt.value); got != tt.want {
			t.Errorf("Format(%q, %d) = %q, want %q", tt.prefix, tt.value, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{" con-007 ", "CON-007", true},
		{"MGR-003", "MGR-003", true},
		{"", "", false},
		{"   \t\n", "", false},
	}

	for _, tt := range tests {
		got, ok := Normalize(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPrefix(t *testing.T) {
	tests := map[string]string{
		"CON-007": "CON",
		"WHS-1":   "WHS",
		"ADMIN":   "",
		"-007":    "",
	}
	for in, want := range tests {
		if got := Prefix(in); got != want {
			t.Errorf("Prefix(%q) = %q, want %q", in, got, want)
		}
	}
}
