package vm

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"interpret", ModeInterpret, false},
		{"Adaptive", ModeAdaptive, false},
		{"", ModeAdaptive, false},
		{" compiled ", ModeCompiled, false},
		{"jit", ModeCompiled, false},
		{"turbo", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	for _, m := range []Mode{ModeInterpret, ModeAdaptive, ModeCompiled} {
		back, err := ParseMode(m.String())
		if err != nil || back != m {
			t.Errorf("round trip of %s failed", m)
		}
	}
	if StatePublished.String() != "published" || StateFailed.String() != "failed" {
		t.Error("state names")
	}
	if TierNative.String() != "native" || TierInterpreted.String() != "interpreted" {
		t.Error("tier names")
	}
}
