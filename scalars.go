package gql

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DateTimeParser parses RFC-3339 datetime scalars into time.Time values.
// Register it under whatever name the schema gives its datetime scalar:
//
//	CustomScalars: map[string]gql.ScalarParser{"DateTime": gql.DateTimeParser}
var DateTimeParser ScalarParser = ScalarParserFunc(func(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		var t time.Time
		if err := t.UnmarshalText([]byte(v)); err != nil {
			return nil, errors.Wrap(err, "invalid datetime")
		}
		return t, nil
	case time.Time:
		return v, nil
	}
	return nil, errors.Errorf("cannot parse %T as a datetime", value)
})

const (
	maxSafeInteger = 9007199254740991
	minSafeInteger = -9007199254740991
)

// LongIntParser parses integer scalars that may be longer than 32 bits but
// still within JavaScript's "safe" range. Servers commonly serialize these as
// numbers or decimal strings; both parse to int64.
var LongIntParser ScalarParser = ScalarParserFunc(func(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid long int")
		}
		return n, nil
	case float64:
		if n := math.Trunc(v); n == v && n >= minSafeInteger && n <= maxSafeInteger {
			return int64(n), nil
		}
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return nil, errors.Errorf("cannot parse %v as a long int", value)
})
