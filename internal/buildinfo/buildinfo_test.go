package buildinfo

import "testing"

func TestCurrent_KeepsInjectedValues(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.2.3", "abcdef", "2026-10-01"
	info := Current()
	if info.Version != "v1.2.3" || info.Commit != "abcdef" || info.Date != "2026-10-01" {
		t.Fatalf("info: %+v", info)
	}
}

func TestCurrent_DefaultsToDev(t *testing.T) {
	oldV := Version
	t.Cleanup(func() { Version = oldV })

	Version = "dev"
	// Un binaire de test ne porte pas de version de module.
	if got := Current().Version; got != "dev" {
		t.Fatalf("version: %q", got)
	}
}
