package endpoint_test

import (
	"testing"
	"time"

	"github.com/lunarispay/hookline/endpoint"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := endpoint.RetryPolicy{
		MaxAttempts:  8,
		InitialDelay: 5 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
	}

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		5 * time.Minute,
		5 * time.Minute,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicyDelayMonotonic(t *testing.T) {
	p := endpoint.RetryPolicy{
		MaxAttempts:  20,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Minute,
		Multiplier:   1.7,
	}

	prev := time.Duration(0)
	for n := 1; n <= p.MaxAttempts; n++ {
		d := p.Delay(n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v, less than Delay(%d) = %v", n, d, n-1, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", n, d, p.MaxDelay)
		}
		prev = d
	}
}

func TestRetryPolicyDelayFloorsAttempt(t *testing.T) {
	p := endpoint.RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	}
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
	if got := p.Delay(-4); got != time.Second {
		t.Errorf("Delay(-4) = %v, want %v", got, time.Second)
	}
}

func TestRetryPolicyValid(t *testing.T) {
	base := endpoint.RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	}
	if !base.Valid() {
		t.Fatal("expected base policy to be valid")
	}

	cases := map[string]endpoint.RetryPolicy{
		"zero attempts":      {MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
		"zero initial delay": {MaxAttempts: 4, InitialDelay: 0, MaxDelay: time.Minute, Multiplier: 2},
		"cap below initial":  {MaxAttempts: 4, InitialDelay: time.Minute, MaxDelay: time.Second, Multiplier: 2},
		"flat multiplier":    {MaxAttempts: 4, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 1},
	}
	for name, p := range cases {
		if p.Valid() {
			t.Errorf("%s: expected invalid", name)
		}
	}
}
