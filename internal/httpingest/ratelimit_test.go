package httpingest

import (
	"net/http"
	"testing"
)

func TestIPLimitersAllowsUpToBurstThenBlocks(t *testing.T) {
	l := newIPLimiters(1, 2)
	if !l.allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if !l.allow("10.0.0.1") {
		t.Fatal("second request (within burst) should be allowed")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("third request should be throttled")
	}
}

func TestIPLimitersTracksIndependently(t *testing.T) {
	l := newIPLimiters(1, 1)
	if !l.allow("10.0.0.1") {
		t.Fatal("first ip's first request should be allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("second ip should have its own independent bucket")
	}
}

func TestIPLimitersDefaults(t *testing.T) {
	l := newIPLimiters(0, 0)
	if l.rps <= 0 || l.burst <= 0 {
		t.Fatalf("expected non-zero defaults, got rps=%v burst=%d", l.rps, l.burst)
	}
}

func TestRemoteIP(t *testing.T) {
	cases := []struct {
		name    string
		fwdFor  string
		remote  string
		want    string
	}{
		{"uses first forwarded entry", "203.0.113.5, 10.0.0.1", "10.0.0.9:1234", "203.0.113.5"},
		{"single forwarded entry", "203.0.113.5", "10.0.0.9:1234", "203.0.113.5"},
		{"falls back to remote addr without port", "", "10.0.0.9:1234", "10.0.0.9"},
		{"falls back to remote addr with no port present", "", "10.0.0.9", "10.0.0.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "http://example.test/event/", nil)
			if err != nil {
				t.Fatal(err)
			}
			r.RemoteAddr = tc.remote
			if tc.fwdFor != "" {
				r.Header.Set("X-Forwarded-For", tc.fwdFor)
			}
			if got := remoteIP(r); got != tc.want {
				t.Errorf("remoteIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
