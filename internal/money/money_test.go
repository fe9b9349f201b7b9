package money

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"1000", "1000", false},
		{"340282366920938463463374607431768211456", "340282366920938463463374607431768211456", false}, // > 128 bits
		{"-5", "", true},
		{"12.5", "", true},
		{"1e3", "", true},
		{"", "", true},
		{"0x10", "", true},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", c.in, err)
			continue
		}
		if got.String() != c.want {
			t.Errorf("Parse(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestFee(t *testing.T) {
	cases := []struct {
		amount string
		want   string
	}{
		{"1000", "30"},
		{"100", "3"},
		{"33", "0"}, // 0.99 floors to 0
		{"34", "1"}, // 1.02 floors to 1
		{"0", "0"},
	}
	for _, c := range cases {
		amount := MustParse(c.amount)
		got := Fee(amount)
		if got.String() != c.want {
			t.Errorf("Fee(%s) = %s, want %s", c.amount, got, c.want)
		}
		if amount.String() != c.amount {
			t.Errorf("Fee mutated its argument: %s -> %s", c.amount, amount)
		}
	}
}

func TestMulCount(t *testing.T) {
	got := MulCount(MustParse("1000"), 7)
	if got.String() != "7000" {
		t.Errorf("MulCount(1000, 7) = %s, want 7000", got)
	}
}

func TestAddSubDoNotMutate(t *testing.T) {
	a := MustParse("10")
	b := MustParse("4")
	if got := Add(a, b); got.String() != "14" {
		t.Errorf("Add = %s, want 14", got)
	}
	if got := Sub(a, b); got.String() != "6" {
		t.Errorf("Sub = %s, want 6", got)
	}
	if a.String() != "10" || b.String() != "4" {
		t.Errorf("operands mutated: a=%s b=%s", a, b)
	}
}

func TestCmpNilSafe(t *testing.T) {
	if Cmp(nil, big.NewInt(0)) != 0 {
		t.Error("nil should compare equal to zero")
	}
	if Cmp(big.NewInt(1), nil) != 1 {
		t.Error("1 should compare greater than nil")
	}
}

func TestFormatNil(t *testing.T) {
	if Format(nil) != "0" {
		t.Error("Format(nil) should be \"0\"")
	}
}
