package orchestrator

import (
	"strings"
	"testing"
)

func TestJSONResponseShape(t *testing.T) {
	resp := jsonResponse("x + y", []RankedResult{
		{DocID: "doc-1", Distance: 2, Source: "x + y"},
	})
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	if resp.JSON.Query != "x + y" {
		t.Fatalf("Query = %q", resp.JSON.Query)
	}
	if len(resp.JSON.Results) != 1 || resp.JSON.Results[0].DOI != "doc-1" || resp.JSON.Results[0].Distance != 2 {
		t.Fatalf("unexpected results: %+v", resp.JSON.Results)
	}
}

func TestXMLResponseGroupsConsecutiveSameDoc(t *testing.T) {
	resp := xmlResponse("q", []RankedResult{
		{DocID: "doc-1", Distance: 0, Source: "a"},
		{DocID: "doc-1", Distance: 1, Source: "b"},
		{DocID: "doc-2", Distance: 2, Source: "c"},
	})
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	if resp.Headers["Content-type"] != "text/xml" {
		t.Fatalf("Content-type header = %q", resp.Headers["Content-type"])
	}
	if got := strings.Count(resp.Body, `<result doi=`); got != 2 {
		t.Fatalf("expected 2 <result> elements (one per distinct doc), got %d in %s", got, resp.Body)
	}
	if got := strings.Count(resp.Body, "<equation"); got != 3 {
		t.Fatalf("expected 3 <equation> elements total, got %d in %s", got, resp.Body)
	}
}

func TestXMLResponseSeparatesNonConsecutiveSameDoc(t *testing.T) {
	resp := xmlResponse("q", []RankedResult{
		{DocID: "doc-1", Distance: 0, Source: "a"},
		{DocID: "doc-2", Distance: 1, Source: "b"},
		{DocID: "doc-1", Distance: 2, Source: "c"},
	})
	if got := strings.Count(resp.Body, `<result doi="doc-1"`); got != 2 {
		t.Fatalf("expected doc-1 to appear in 2 separate <result> elements since matches aren't adjacent, got %d in %s", got, resp.Body)
	}
}

func TestTimeoutResponseShape(t *testing.T) {
	resp := timeoutResponse()
	if resp.Code != 500 {
		t.Fatalf("Code = %d, want 500", resp.Code)
	}
	if resp.Body != "Error: Timed out" {
		t.Fatalf("Body = %q", resp.Body)
	}
	if resp.Headers["Content-type"] != "text/plain" {
		t.Fatalf("Content-type header = %q", resp.Headers["Content-type"])
	}
}

func TestBadRequestAndInternalErrorShapes(t *testing.T) {
	if br := badRequestResponse(); br.Code != 400 {
		t.Fatalf("badRequestResponse Code = %d, want 400", br.Code)
	}
	if ie := internalErrorResponse(); ie.Code != 500 || ie.Body != "" {
		t.Fatalf("internalErrorResponse = %+v, want bare 500", ie)
	}
}
