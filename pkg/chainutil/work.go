package chainutil

import "math/big"

// Work is cumulative proof-of-work, an arbitrary-precision unsigned integer
// (spec §3: "cumulative-work as arbitrary-precision unsigned integer").
type Work struct {
	v big.Int
}

// ZeroWork returns the zero-work value (genesis's predecessor work).
func ZeroWork() Work {
	return Work{}
}

// NewWork wraps an existing big.Int as Work. The big.Int is copied.
func NewWork(v *big.Int) Work {
	var w Work
	w.v.Set(v)
	return w
}

// Add returns a+b without mutating either operand.
func (a Work) Add(b Work) Work {
	var out Work
	out.v.Add(&a.v, &b.v)
	return out
}

// Cmp compares two work values: -1, 0, +1 as a<b, a==b, a>b.
func (a Work) Cmp(b Work) int {
	return a.v.Cmp(&b.v)
}

// BigInt returns a copy of the underlying big.Int.
func (a Work) BigInt() *big.Int {
	return new(big.Int).Set(&a.v)
}

// String renders the work value in base 10.
func (a Work) String() string {
	return a.v.String()
}

// MarshalJSON encodes Work as a decimal string so values beyond 2^64 survive
// round-tripping through JSON (JSON numbers are not safe beyond 2^53).
func (a Work) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string into Work.
func (a *Work) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		a.v = big.Int{}
		return nil
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return &SyntaxError{s}
	}
	return nil
}

// SyntaxError reports a malformed decimal string passed to UnmarshalJSON.
type SyntaxError struct {
	Input string
}

func (e *SyntaxError) Error() string {
	return "chainutil: invalid work value " + e.Input
}
