package wanikani

import (
	"encoding/json"
	"errors"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// ErrUnsupported marks well-formed resources the
// cache does not store, such as radicals, radical assignments or review
// statistics.
var ErrUnsupported = errors.New("unsupported resource object")

// Record is one decoded resource. Exactly one field is set.
type Record struct {
	Subject    *schema.Subject
	Assignment *schema.Assignment
}

// DecodeResource decodes a single API resource object, as found in the
// data array of a collection or returned by a single-resource endpoint.
func DecodeResource(raw []byte) (Record, error) {
	var head struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Record{}, malformed("%v", err)
	}

	switch {
	case schema.Kind(head.Object).Valid():
		var r resource[subjectData]
		if err := json.Unmarshal(raw, &r); err != nil {
			return Record{}, malformed("%v", err)
		}
		s, err := subjectFromResource(r)
		if err != nil {
			return Record{}, err
		}
		return Record{Subject: &s}, nil

	case head.Object == "assignment":
		var r resource[assignmentData]
		if err := json.Unmarshal(raw, &r); err != nil {
			return Record{}, malformed("%v", err)
		}
		a, err := assignmentFromResource(r)
		if err != nil {
			return Record{}, err
		}
		return Record{Assignment: &a}, nil

	case head.Object == "":
		return Record{}, malformed("resource has no object field")

	default:
		return Record{}, unsupported("object %q", head.Object)
	}
}
