// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// ParseInt64Default converts a decimal string to an int64. If the string is
// empty or cannot be parsed, it returns def instead.
//
// Example:
//
//	v := utils.ParseInt64Default("42", 0) // returns 42
//	v = utils.ParseInt64Default("", 10)   // returns 10
//	v = utils.ParseInt64Default("x", 5)   // returns 5
func ParseInt64Default(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}
