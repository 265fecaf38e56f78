package dbtypes

import "testing"

func TestFeatureSetRoundTrip(t *testing.T) {
	in := FeatureSet{"api_access": true, "team_management": false}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out FeatureSet
	if err := out.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !out.Enabled("api_access") || out.Enabled("team_management") {
		t.Fatalf("unexpected features %v", out)
	}
	if names := out.Names(); len(names) != 1 || names[0] != "api_access" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestFeatureSetCovers(t *testing.T) {
	enterprise := FeatureSet{"api_access": true, "team_management": true}
	basic := FeatureSet{"api_access": false}
	if !enterprise.Covers(basic) {
		t.Fatalf("enterprise should cover basic")
	}
	if basic.Covers(enterprise) {
		t.Fatalf("basic should not cover enterprise")
	}
}

func TestStringListScanNil(t *testing.T) {
	var s StringList
	if err := s.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if len(s) != 0 {
		t.Fatalf("expected empty list")
	}
	if err := s.Scan([]byte(`["basic","premium"]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !s.Contains("premium") || s.Contains("enterprise") {
		t.Fatalf("unexpected list %v", s)
	}
}
