package clearance

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Level
		wantErr bool
	}{
		{"general", "GENERAL", General, false},
		{"lowercase", "confidential", Confidential, false},
		{"padded", "  RESTRICTED ", Restricted, false},
		{"highest", "HIGHLY_CONFIDENTIAL", HighlyConfidential, false},
		{"empty", "", Unknown, true},
		{"garbage", "TOP_SECRET", Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("level: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllows(t *testing.T) {
	tests := []struct {
		name string
		user Level
		doc  Level
		want bool
	}{
		{"equal", Restricted, Restricted, true},
		{"below", Confidential, General, true},
		{"above", General, Confidential, false},
		{"top-sees-all", HighlyConfidential, HighlyConfidential, true},
		{"unknown-user", Unknown, General, false},
		{"unknown-doc", HighlyConfidential, Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Allows(tt.doc); got != tt.want {
				t.Errorf("Allows: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrdering(t *testing.T) {
	order := []Level{General, Restricted, Confidential, HighlyConfidential}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%v should be below %v", order[i-1], order[i])
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, lv := range []Level{General, Restricted, Confidential, HighlyConfidential} {
		got, err := Parse(lv.String())
		if err != nil {
			t.Fatalf("parse %v: %v", lv, err)
		}
		if got != lv {
			t.Errorf("round trip: got %v, want %v", got, lv)
		}
	}
	if Unknown.String() != "UNKNOWN" {
		t.Errorf("unknown name: got %q", Unknown.String())
	}
}
