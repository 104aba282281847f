package fees

import "testing"

func TestFeePinnedValues(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"mid", 0.50, 0.02},
		{"low", 0.10, 0.01},
		{"high", 0.90, 0.01},
		{"zero", 0, 0},
		{"one", 1, 0},
		{"below-range", -0.1, 0},
		{"above-range", 1.1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fee(tt.p)
			if got != tt.want {
				t.Errorf("Fee(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestFeeSymmetric(t *testing.T) {
	prices := []float64{0.01, 0.05, 0.12, 0.33, 0.49, 0.5, 0.51, 0.87, 0.99}
	for _, p := range prices {
		a, b := Fee(p), Fee(1-p)
		if a != b {
			t.Errorf("Fee(%v)=%v != Fee(%v)=%v", p, a, 1-p, b)
		}
	}
}

func TestFeeNonNegativeAndBounded(t *testing.T) {
	for p := 0.0; p <= 1.0; p += 0.01 {
		f := Fee(p)
		if f < 0 {
			t.Fatalf("Fee(%v) = %v, negative", p, f)
		}
		if f > 0.02 {
			t.Fatalf("Fee(%v) = %v, exceeds ceiling-rule max of 0.02 at p=0.5", p, f)
		}
	}
}

func TestFeeCeilingRounding(t *testing.T) {
	// 0.07 * 0.38 * 0.62 = 0.0164920 -> *100 = 1.6492 -> ceil = 2 -> /100 = 0.02
	if got := Fee(0.38); got != 0.02 {
		t.Errorf("Fee(0.38) = %v, want 0.02 (ceiling rule)", got)
	}
}

func TestTotal(t *testing.T) {
	if got := Total(0.5, 3); got != 0.06 {
		t.Errorf("Total(0.5, 3) = %v, want 0.06", got)
	}
}

func TestTotalAcross(t *testing.T) {
	got := TotalAcross([]float64{0.30, 0.30, 0.30})
	want := 3 * Fee(0.30)
	if got != want {
		t.Errorf("TotalAcross = %v, want %v", got, want)
	}
}
