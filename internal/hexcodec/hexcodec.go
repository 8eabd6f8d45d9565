// Package hexcodec converts the 0x-prefixed quantities found in Ethereum
// JSON-RPC payloads into the signed 64-bit integers used by the store.
package hexcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmpty = errors.New("empty hex value")

// DecodeError reports a value that could not be parsed as a 64-bit hex quantity.
type DecodeError struct {
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode hex %q: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses s as an unsigned 64-bit base-16 number, with or without the
// 0x prefix, and returns its two's-complement int64 representation. Values
// at or above 2^63 therefore come back negative; callers that need a
// non-negative quantity should use DecodeNonNegative.
func Decode(s string) (int64, error) {
	trimmed := trimPrefix(s)
	if trimmed == "" {
		return 0, &DecodeError{Input: s, Err: errEmpty}
	}
	value, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &DecodeError{Input: s, Err: err}
	}
	return int64(value), nil
}

// DecodeNonNegative is Decode restricted to [0, 2^63).
func DecodeNonNegative(s string) (int64, error) {
	value, err := Decode(s)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, &DecodeError{Input: s, Err: strconv.ErrRange}
	}
	return value, nil
}

// Encode renders value as a 0x-prefixed lowercase hex quantity.
func Encode(value uint64) string {
	return "0x" + strconv.FormatUint(value, 16)
}

func trimPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
