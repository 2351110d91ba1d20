package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Answer is a single answer or a set of answers for multi-select questions.
// On the wire it may be a number, a string, or an array of either; integer-looking
// values are encoded back as numbers.
type Answer []string

// Single builds a one-value answer.
func Single(v string) Answer { return Answer{v} }

// IsMultiple reports whether more than one value is set.
func (a Answer) IsMultiple() bool { return len(a) > 1 }

// Equal compares two answers as sets.
func (a Answer) Equal(b Answer) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler. Canonical integers are written as numbers.
func (a Answer) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(a))
	for _, v := range a {
		if n, err := strconv.Atoi(v); err == nil && strconv.Itoa(n) == v {
			out = append(out, n)
			continue
		}
		out = append(out, v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(Answer, 0, len(raw))
		for _, r := range raw {
			v, err := scalar(r)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*a = out
		return nil
	}
	v, err := scalar(b)
	if err != nil {
		return err
	}
	*a = Answer{v}
	return nil
}

func scalar(b []byte) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("answer: unsupported value %s", b)
}
