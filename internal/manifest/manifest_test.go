package manifest

import "testing"

func TestNewSetsDefaultAdvisoryFlags(t *testing.T) {
	m := New(2, "2.0.0", 1)
	if !m.RestartRequired {
		t.Fatalf("expected RestartRequired to default to true")
	}
	if m.Critical {
		t.Fatalf("expected Critical to default to false")
	}
	if m.VersionId != 2 || m.FromVersionId != 1 || m.Version != "2.0.0" {
		t.Fatalf("expected New to carry through its arguments, got %+v", m)
	}
	if len(m.Files) != 0 {
		t.Fatalf("expected a fresh manifest to carry no files")
	}
}
