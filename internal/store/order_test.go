package store

import "testing"

func TestAmountWithinTolerance(t *testing.T) {
	tests := []struct {
		name     string
		expected float64
		paid     float64
		want     bool
	}{
		{"exact match", 10.00, 10.00, true},
		{"one cent under", 9.00, 8.99, true},
		{"one cent over", 9.00, 9.01, true},
		{"one cent at small magnitudes", 0.03, 0.02, true},
		{"two cents under", 9.00, 8.98, false},
		{"two cents over", 0.03, 0.05, false},
		{"sub-cent drift", 100.00, 100.005, true},
		{"way off", 100.00, 1.00, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AmountWithinTolerance(tt.expected, tt.paid); got != tt.want {
				t.Errorf("AmountWithinTolerance(%v, %v) = %v, want %v", tt.expected, tt.paid, got, tt.want)
			}
		})
	}
}
