package orchestrator

import (
	"encoding/xml"
)

// Response is the full response envelope. A successful response populates
// exactly one of JSON or Body, matching the `format` the request asked for;
// a 400 or a generic 500 carries only Code, and a timeout carries a
// plain-text Body.
type Response struct {
	Code    int               `json:"code"`
	JSON    *jsonBody         `json:"json,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type jsonBody struct {
	Query   string       `json:"query"`
	Results []jsonResult `json:"results"`
}

type jsonResult struct {
	DOI      string `json:"doi"`
	Distance int    `json:"distance"`
	Source   string `json:"source"`
}

// RankedResult is one materialized, ordered match: a fragment's owning
// document, its distance from the query, and its looked-up source text.
type RankedResult struct {
	DocID    string
	Distance int
	Source   string
}

func badRequestResponse() Response {
	return Response{Code: 400}
}

func timeoutResponse() Response {
	return Response{
		Code:    500,
		Headers: map[string]string{"Content-type": "text/plain"},
		Body:    "Error: Timed out",
	}
}

func internalErrorResponse() Response {
	return Response{Code: 500}
}

func jsonResponse(query string, results []RankedResult) Response {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{DOI: r.DocID, Distance: r.Distance, Source: r.Source}
	}
	return Response{Code: 200, JSON: &jsonBody{Query: query, Results: out}}
}

// xmlResults, xmlGroup, and xmlEquation model
// <results><query>…</query><result doi="…"><equation distance="n">source</equation>…</result>…</results>.
// Consecutive ranked results belonging to the same document are nested
// under one <result> element; matches of one document separated by another
// document's match start a new <result> with the same doi.
type xmlResults struct {
	XMLName xml.Name   `xml:"results"`
	Query   string     `xml:"query"`
	Groups  []xmlGroup `xml:"result"`
}

type xmlGroup struct {
	DOI       string        `xml:"doi,attr"`
	Equations []xmlEquation `xml:"equation"`
}

type xmlEquation struct {
	Distance int    `xml:"distance,attr"`
	Source   string `xml:",chardata"`
}

func xmlResponse(query string, results []RankedResult) Response {
	doc := xmlResults{Query: query}
	for _, r := range results {
		eq := xmlEquation{Distance: r.Distance, Source: r.Source}
		if n := len(doc.Groups); n > 0 && doc.Groups[n-1].DOI == r.DocID {
			doc.Groups[n-1].Equations = append(doc.Groups[n-1].Equations, eq)
			continue
		}
		doc.Groups = append(doc.Groups, xmlGroup{DOI: r.DocID, Equations: []xmlEquation{eq}})
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return internalErrorResponse()
	}
	return Response{
		Code:    200,
		Headers: map[string]string{"Content-type": "text/xml"},
		Body:    string(body),
	}
}
