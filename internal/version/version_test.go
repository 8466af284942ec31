package version

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	oldV, oldC, oldD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = oldV, oldC, oldD })
}

func TestCurrentDefaults(t *testing.T) {
	b := Current()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build info must not be empty: %+v", b)
	}
}

func TestShortCommit(t *testing.T) {
	tests := map[string]string{
		"0123456789abcdef": "0123456",
		"abc":              "abc",
		"unknown":          "unknown",
	}
	for in, want := range tests {
		if got := (Build{Commit: in}).ShortCommit(); got != want {
			t.Fatalf("ShortCommit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFieldsAndString(t *testing.T) {
	withBuild(t, "v1.4.0", "deadbeefcafe", "2026-03-01")

	b := Current()
	fields := b.Fields()
	if fields["version"] != "v1.4.0" || fields["commit"] != "deadbee" || fields["build_date"] != "2026-03-01" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if s := b.String(); !strings.Contains(s, "v1.4.0") || !strings.Contains(s, "deadbee") {
		t.Fatalf("unexpected string: %q", s)
	}
}

func TestRegisterBuildInfo(t *testing.T) {
	withBuild(t, "v2.0.0", "feedface00", "2026-04-01")
	reg := prometheus.NewRegistry()

	b := Current()
	if err := b.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Повторная регистрация того же коллектора допустима.
	if err := b.Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	expected := `
# HELP muzbazar_build_info Build information of the ledger service
# TYPE muzbazar_build_info gauge
muzbazar_build_info{commit="feedfac",date="2026-04-01",version="v2.0.0"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "muzbazar_build_info"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
