package timeutil

import "testing"

func TestAddCarries(t *testing.T) {
	a := Time{Sec: 1, Nsec: 700_000_000}
	b := Time{Sec: 0, Nsec: 500_000_000}
	got := Add(a, b)
	want := Time{Sec: 2, Nsec: 200_000_000}
	if got != want {
		t.Fatalf("Add() = %+v, want %+v", got, want)
	}
}

func TestSubBorrows(t *testing.T) {
	a := Time{Sec: 2, Nsec: 100_000_000}
	b := Time{Sec: 1, Nsec: 500_000_000}
	got := Sub(a, b)
	want := Time{Sec: 0, Nsec: 600_000_000}
	if got != want {
		t.Fatalf("Sub() = %+v, want %+v", got, want)
	}
}

func TestSubClampsAtZero(t *testing.T) {
	a := Time{Sec: 1}
	b := Time{Sec: 2}
	if got := Sub(a, b); !got.IsZero() {
		t.Fatalf("Sub() = %+v, want zero", got)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b Time
		want int
	}{
		{Time{Sec: 1}, Time{Sec: 2}, -1},
		{Time{Sec: 2}, Time{Sec: 1}, 1},
		{Time{Sec: 1, Nsec: 5}, Time{Sec: 1, Nsec: 5}, 0},
		{Time{Sec: 1, Nsec: 4}, Time{Sec: 1, Nsec: 5}, -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%+v, %+v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFromNanosRoundTrip(t *testing.T) {
	tm := FromNanos(1_500_000_000)
	if tm.Sec != 1 || tm.Nsec != 500_000_000 {
		t.Fatalf("FromNanos() = %+v", tm)
	}
	if got := tm.Duration(); got != 1_500_000_000 {
		t.Fatalf("Duration() = %d, want 1500000000", got)
	}
}
