package ledger

import "testing"

func TestResolveTarget(t *testing.T) {
	cases := []struct {
		raw  string
		want Target
	}{
		{"primary", Primary},
		{"l1", Primary},
		{"Sepolia", Primary},
		{"secondary", Secondary},
		{"L2", Secondary},
		{"optimism", Secondary},
		{"OptimismSepolia", Secondary},
		{" l1 ", Primary},
		{"", Secondary},
		{"mainnet", Secondary},
	}
	for _, c := range cases {
		if got := ResolveTarget(c.raw, Secondary); got != c.want {
			t.Fatalf("ResolveTarget(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
	if got := ResolveTarget("bogus", Primary); got != Primary {
		t.Fatalf("default fallback broken: %s", got)
	}
}
