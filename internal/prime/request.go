package prime

import (
	"encoding/json"
	"errors"
)

// Request is a parsed isPrime query. Float is set when the peer sent a
// non-integer number field: such requests are always answered "not
// prime" without ever touching the sieve.
type Request struct {
	Method string
	Number int
	Float  bool
}

type rawRequestInt struct {
	Method *string `json:"method"`
	Number *int    `json:"number"`
}

type rawRequestFloat struct {
	Method *string  `json:"method"`
	Number *float64 `json:"number"`
}

// UnwrapRequest parses one line of the isPrime protocol. It first
// tries to parse Number as an integer; on failure it retries as a
// float so a well-formed-but-non-integer request is recognized as
// malformed-for-primality rather than malformed JSON. Either method or
// number missing is a parse error.
func UnwrapRequest(line []byte) (*Request, error) {
	var raw rawRequestInt
	if err := json.Unmarshal(line, &raw); err != nil {
		var rawFloat rawRequestFloat
		if err2 := json.Unmarshal(line, &rawFloat); err2 != nil {
			return nil, err
		}
		if rawFloat.Number == nil || rawFloat.Method == nil {
			return nil, errors.New("prime: required field missing")
		}
		return &Request{Method: *rawFloat.Method, Number: 0, Float: true}, nil
	}
	if raw.Number == nil || raw.Method == nil {
		return nil, errors.New("prime: required field missing")
	}
	return &Request{Method: *raw.Method, Number: *raw.Number}, nil
}

// Valid reports whether the request's method is the one this protocol
// supports.
func (r *Request) Valid() bool {
	return r.Method == "isPrime"
}
