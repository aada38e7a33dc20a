package sortenc

import (
	"math/rand"
	"sort"
	"testing"
)

func TestIntScenarioSeeds(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{-10, "X89"},
		{10, "c10"},
		{0, "a"},
	}
	for _, c := range cases {
		if got := Int(c.n); got != c.want {
			t.Errorf("Int(%d) = %q, want %q", c.n, got, c.want)
		}
	}

	encoded := make([]string, len(cases))
	for i, c := range cases {
		encoded[i] = c.want
	}
	sorted := append([]string{}, encoded...)
	sort.Strings(sorted)
	if sorted[0] != "X89" || sorted[1] != "a" || sorted[2] != "c10" {
		t.Fatalf("lexicographic sort of encoded values did not match numeric order: %v", sorted)
	}
}

func TestIntOrderInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	const n = 2000
	nums := make([]int64, n)
	for i := range nums {
		nums[i] = r.Int63n(2_000_000_000_000_000_000) - 1_000_000_000_000_000_000
	}
	for i := 0; i < len(nums); i++ {
		for j := 0; j < len(nums); j++ {
			a, b := nums[i], nums[j]
			ea, eb := Int(a), Int(b)
			if a < b && !(ea < eb) {
				t.Fatalf("Int(%d)=%q should be < Int(%d)=%q", a, ea, b, eb)
			}
			if a == b && ea != eb {
				t.Fatalf("Int(%d)=%q should equal Int(%d)=%q", a, ea, b, eb)
			}
		}
	}
}

func TestIntRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 10, -10, 999999, -999999, 1_000_000_000_000_000_000, -1_000_000_000_000_000_000} {
		got, err := DecodeInt(Int(n))
		if err != nil {
			t.Fatalf("DecodeInt(Int(%d)): %v", n, err)
		}
		if got != n {
			t.Errorf("DecodeInt(Int(%d)) = %d", n, got)
		}
	}
}

func TestFixedRoundTrip(t *testing.T) {
	cases := []struct {
		f         float64
		precision int
	}{
		{0, 2}, {5, 2}, {0.05, 2}, {123.45, 2}, {-10, 0}, {-0.5, 1}, {999.999, 3}, {-999.999, 3},
	}
	for _, c := range cases {
		enc := Fixed(c.f, c.precision)
		got, err := DecodeFixed(enc, c.precision)
		if err != nil {
			t.Fatalf("DecodeFixed(Fixed(%v, %d)=%q): %v", c.f, c.precision, enc, err)
		}
		if diff := got - c.f; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("DecodeFixed(Fixed(%v, %d)) = %v", c.f, c.precision, got)
		}
	}
}

func TestFixedZeroPrecisionMatchesInt(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 10, -10, 12345, -12345} {
		if got, want := Fixed(float64(n), 0), Int(n); got != want {
			t.Errorf("Fixed(%d, 0) = %q, want Int(%d) = %q", n, got, n, want)
		}
	}
}

func TestFloatOrderInvariant(t *testing.T) {
	values := []float64{-100.5, -10.25, -1.1, -0.5, 0, 0.5, 1.1, 10.25, 100.5}
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := values[i], values[j]
			ea, eb := Float(a, 2), Float(b, 2)
			if !(ea < eb) {
				t.Fatalf("Float(%v)=%q should be < Float(%v)=%q", a, ea, b, eb)
			}
		}
	}
}
