package orchestrator

import (
	"encoding/json"
	"strconv"

	apperrors "github.com/texsearch/texsearch/pkg/errors"
)

// DefaultSearchTimeoutSeconds and DefaultPreprocessorTimeoutSeconds are the
// envelope's default timeouts when the corresponding field is omitted.
const (
	DefaultSearchTimeoutSeconds       = 10.0
	DefaultPreprocessorTimeoutSeconds = 5.0
	DefaultStartAt                    = 1
)

// envelope is the outer request shape: {"query": {...}}.
type envelope struct {
	Query rawRequest `json:"query"`
}

// rawRequest mirrors the wire request exactly: every numeric field arrives
// as a decimal string, per the external protocol.
type rawRequest struct {
	SearchTerm          string  `json:"searchTerm"`
	SearchTimeout       *string `json:"searchTimeout,omitempty"`
	PreprocessorTimeout *string `json:"preprocessorTimeout,omitempty"`
	StartAt             *string `json:"startAt,omitempty"`
	EndAt               *string `json:"endAt,omitempty"`
	Format              string  `json:"format,omitempty"`
}

// Request is the parsed, defaulted, type-checked form of one query.
type Request struct {
	SearchTerm          string
	SearchTimeoutSec    float64
	PreprocessorTimeout float64
	StartAt             int  // 1-based
	EndAt               int  // inclusive; only meaningful when EndAtSet
	EndAtSet            bool // false means "unbounded"
	Format              string
}

// ParseRequest decodes one line of the stdio query protocol. A malformed
// envelope, a missing searchTerm, an unparsable numeric field, or an
// unrecognized format all surface as a BAD_REQUEST AppError.
func ParseRequest(line []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Request{}, apperrors.BadRequest("invalid request envelope: %v", err)
	}
	raw := env.Query
	if raw.SearchTerm == "" {
		return Request{}, apperrors.BadRequest("searchTerm is required")
	}

	req := Request{
		SearchTerm:          raw.SearchTerm,
		SearchTimeoutSec:    DefaultSearchTimeoutSeconds,
		PreprocessorTimeout: DefaultPreprocessorTimeoutSeconds,
		StartAt:             DefaultStartAt,
		Format:              "xml",
	}

	if raw.SearchTimeout != nil {
		v, err := strconv.ParseFloat(*raw.SearchTimeout, 64)
		if err != nil {
			return Request{}, apperrors.BadRequest("invalid searchTimeout %q: %v", *raw.SearchTimeout, err)
		}
		req.SearchTimeoutSec = v
	}
	if raw.PreprocessorTimeout != nil {
		v, err := strconv.ParseFloat(*raw.PreprocessorTimeout, 64)
		if err != nil {
			return Request{}, apperrors.BadRequest("invalid preprocessorTimeout %q: %v", *raw.PreprocessorTimeout, err)
		}
		req.PreprocessorTimeout = v
	}
	if raw.StartAt != nil {
		v, err := strconv.Atoi(*raw.StartAt)
		if err != nil {
			return Request{}, apperrors.BadRequest("invalid startAt %q: %v", *raw.StartAt, err)
		}
		if v < 1 {
			return Request{}, apperrors.BadRequest("startAt must be >= 1, got %d", v)
		}
		req.StartAt = v
	}
	if raw.EndAt != nil {
		v, err := strconv.Atoi(*raw.EndAt)
		if err != nil {
			return Request{}, apperrors.BadRequest("invalid endAt %q: %v", *raw.EndAt, err)
		}
		if v < req.StartAt {
			return Request{}, apperrors.BadRequest("endAt %d must be >= startAt %d", v, req.StartAt)
		}
		req.EndAt = v
		req.EndAtSet = true
	}
	if raw.Format != "" {
		switch raw.Format {
		case "xml", "json":
			req.Format = raw.Format
		default:
			return Request{}, apperrors.BadRequest("unrecognized format %q", raw.Format)
		}
	}

	return req, nil
}

// cacheKey normalizes a Request into the string a ResultCache keys on.
func (r Request) cacheKey() string {
	end := "inf"
	if r.EndAtSet {
		end = strconv.Itoa(r.EndAt)
	}
	return r.SearchTerm + "|" + strconv.Itoa(r.StartAt) + "|" + end + "|" + r.Format
}
