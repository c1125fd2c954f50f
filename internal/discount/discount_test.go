package discount

import "testing"

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		rate  int
		want  float64
	}{
		{"no discount", 10.00, 100, 10.00},
		{"ninety percent", 10.00, 90, 9.00},
		{"rounding to cents", 9.99, 85, 8.49},
		{"half price", 0.50, 50, 0.25},
		{"floor at one cent", 0.01, 50, 0.01},
		{"below one cent keeps original", 0.30, 1, 0.30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.price, tt.rate)
			if got != tt.want {
				t.Errorf("Apply(%v, %d) = %v, want %v", tt.price, tt.rate, got, tt.want)
			}
		})
	}
}

func TestApplyDeterministic(t *testing.T) {
	// The settlement amount cross-check relies on order creation and
	// verification computing bit-identical prices.
	for i := 0; i < 1000; i++ {
		if Apply(19.99, 37) != Apply(19.99, 37) {
			t.Fatal("Apply is not deterministic")
		}
	}
}
