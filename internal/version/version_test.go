package version

import "testing"

func TestToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9.3.0", "9.3.0"},
		{"9.3.0-r42", "9.3.0"},
		{"9.3.0-r42-gabc123", "9.3.0"},
		{" 8.0.1-beta ", "8.0.1"},
		{"dev", "dev"},
		{"-snapshot", ""},
	}

	for _, tt := range tests {
		if got := Token(tt.in); got != tt.want {
			t.Errorf("Token(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInfo(t *testing.T) {
	got := Info("mbctl")
	want := "mbctl " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
	if got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}
