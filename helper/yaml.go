// Package helper contains small shared utilities for decoding proposal
// documents.
package helper

import (
	"errors"
	"math/big"
	"regexp"
	"strconv"
)

// KeyMatchFunc reports whether a dotted key path should be coerced.
type KeyMatchFunc func(key string) bool

// CoerceBigIntStrings walks a yaml.Unmarshal result (maps/slices/scalars) and
// converts *string* values that look like integers AND overflow int64 into
// *big.Int. It mutates map[string]any and []any in-place.
//
// YAML resolves unquoted integers beyond uint64 to float64 and silently loses
// precision, so document authors quote u128 and u256 values. This restores
// them to exact integers after decoding.
func CoerceBigIntStrings(v any) any {
	return coerceBigIntStrings(v, "", nil)
}

// CoerceBigIntStringsForKeys is the safer variant: only converts numeric
// strings under specific leaf keys (e.g. "nonce").
func CoerceBigIntStringsForKeys(v any, matchFunc KeyMatchFunc) any {
	return coerceBigIntStrings(v, "", matchFunc)
}

func coerceBigIntStrings(v any, currentKey string, matchFunc KeyMatchFunc) any {
	switch x := v.(type) {
	case map[string]any:
		for k, vv := range x {
			key := currentKey + "." + k
			x[k] = coerceBigIntStrings(vv, key, matchFunc)
		}

		return x

	case []map[string]any:
		for i := range x {
			// elements in a list don't have their own key, so we use the parent
			// key with a ".[]" suffix to check if we should coerce big ints in
			// this list.
			key := currentKey + ".[]"
			x[i] = coerceBigIntStrings(x[i], key, matchFunc).(map[string]any)
		}

		return x

	case []any:
		for i := range x {
			key := currentKey + ".[]"
			x[i] = coerceBigIntStrings(x[i], key, matchFunc)
		}

		return x

	case string:
		if matchFunc != nil {
			if !matchFunc(currentKey) {
				return x
			}
		}
		if bi, ok := stringToBigIntIfOverflowInt64(x); ok {
			return bi // *big.Int (pointer), not big.Int (value)
		}

		return x

	default:
		return v
	}
}

func stringToBigIntIfOverflowInt64(s string) (*big.Int, bool) {
	// If it fits int64, keep it as a string (likely user meant a string, or
	// YAML had quotes).
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return nil, false
	} else {
		var ne *strconv.NumError
		if errors.As(err, &ne) && ne.Err != strconv.ErrRange {
			// not a range overflow; should be safe to treat as string
			return nil, false
		}
	}

	// Same for uint64.
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return nil, false
	} else {
		var ne *strconv.NumError
		if errors.As(err, &ne) && ne.Err != strconv.ErrRange {
			return nil, false
		}
	}

	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}

	return z, true
}

// ProposalNumericKeys matches the numeric leaf keys of a proposal seed
// document. The nonce regularly exceeds int64 because validator module keys
// occupy its high bytes, and the u128 gas and fee fields can too.
func ProposalNumericKeys(key string) bool {
	patterns := []string{
		// Matching examples:
		//	.proposals.[].nonce
		`^\.proposals\.\[\]\.nonce$`,
		`^\.proposals\.\[\]\.(?:verification_gas_limit|call_gas_limit|pre_verification_gas)$`,
		`^\.proposals\.\[\]\.(?:max_fee_per_gas|max_priority_fee_per_gas)$`,
		`^\.proposals\.\[\]\.paymaster_(?:verification_gas_limit|post_op_gas_limit)$`,
	}

	matched := false
	for _, p := range patterns {
		var err error
		matched, err = regexp.MatchString(p, key)
		if err != nil {
			break
		}
		if matched {
			break
		}
	}

	return matched
}
