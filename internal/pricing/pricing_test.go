package pricing

import "testing"

func TestAmount(t *testing.T) {
	cases := []struct {
		unit  string
		count int
		want  string
	}{
		{"9.9", 1, "9.90"},
		{"9.9", 3, "29.70"},
		{"9.90", 10, "99.00"},
		{"0.01", 1, "0.01"},
		{"1.005", 1, "1.01"}, // half up at 2 places
		{"0.333", 3, "1.00"},
	}
	for _, c := range cases {
		svc, err := New(c.unit)
		if err != nil {
			t.Fatalf("New(%q): %v", c.unit, err)
		}
		got, err := svc.Amount(c.count)
		if err != nil {
			t.Fatalf("Amount(%d): %v", c.count, err)
		}
		if got != c.want {
			t.Errorf("unit=%s count=%d: got %s want %s", c.unit, c.count, got, c.want)
		}
	}
}

func TestAmountRejectsNonPositiveCount(t *testing.T) {
	svc, _ := New("9.9")
	for _, count := range []int{0, -1} {
		if _, err := svc.Amount(count); err == nil {
			t.Errorf("count=%d: expected error", count)
		}
	}
}

func TestNewRejectsBadUnitPrice(t *testing.T) {
	for _, unit := range []string{"", "abc", "0", "-1.5"} {
		if _, err := New(unit); err == nil {
			t.Errorf("unit=%q: expected error", unit)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("9.9", "9.90") {
		t.Error("9.9 should equal 9.90")
	}
	if Equal("9.90", "9.91") {
		t.Error("9.90 should not equal 9.91")
	}
	if Equal("not-a-number", "9.90") {
		t.Error("unparseable amount should never compare equal")
	}
}
