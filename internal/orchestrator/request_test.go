package orchestrator

import "testing"

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest([]byte(`{"query":{"searchTerm":"x + y"}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.SearchTerm != "x + y" {
		t.Fatalf("SearchTerm = %q", req.SearchTerm)
	}
	if req.SearchTimeoutSec != DefaultSearchTimeoutSeconds {
		t.Fatalf("SearchTimeoutSec = %v, want default", req.SearchTimeoutSec)
	}
	if req.PreprocessorTimeout != DefaultPreprocessorTimeoutSeconds {
		t.Fatalf("PreprocessorTimeout = %v, want default", req.PreprocessorTimeout)
	}
	if req.StartAt != 1 {
		t.Fatalf("StartAt = %d, want 1", req.StartAt)
	}
	if req.EndAtSet {
		t.Fatalf("EndAtSet = true, want false (unbounded)")
	}
	if req.Format != "xml" {
		t.Fatalf("Format = %q, want xml", req.Format)
	}
}

func TestParseRequestExplicitFields(t *testing.T) {
	req, err := ParseRequest([]byte(`{"query":{
		"searchTerm": "a",
		"searchTimeout": "2.5",
		"preprocessorTimeout": "1.0",
		"startAt": "3",
		"endAt": "10",
		"format": "json"
	}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.SearchTimeoutSec != 2.5 || req.PreprocessorTimeout != 1.0 {
		t.Fatalf("unexpected timeouts: %+v", req)
	}
	if req.StartAt != 3 || !req.EndAtSet || req.EndAt != 10 {
		t.Fatalf("unexpected pagination: %+v", req)
	}
	if req.Format != "json" {
		t.Fatalf("Format = %q", req.Format)
	}
}

func TestParseRequestMissingSearchTerm(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"query":{}}`)); err == nil {
		t.Fatal("expected error for missing searchTerm")
	}
}

func TestParseRequestInvalidNumeric(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"query":{"searchTerm":"a","startAt":"not-a-number"}}`)); err == nil {
		t.Fatal("expected error for invalid startAt")
	}
}

func TestParseRequestInvalidFormat(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"query":{"searchTerm":"a","format":"yaml"}}`)); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestParseRequestMalformedJSON(t *testing.T) {
	if _, err := ParseRequest([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseRequestEndAtBeforeStartAt(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"query":{"searchTerm":"a","startAt":"5","endAt":"2"}}`)); err == nil {
		t.Fatal("expected error when endAt < startAt")
	}
}
