// Package utils holds small helpers shared by handlers and services.
package utils

import "strings"

// ParseCSV splits comma-separated values from one or more inputs and
// returns the trimmed non-empty ones in order. Returns nil when none remain.
// Query parameters such as ?symbols=VOO,AGG&symbols=IWM flatten to one list.
func ParseCSV(inputs ...string) []string {
	var result []string
	for _, s := range inputs {
		for _, v := range strings.Split(s, ",") {
			if v = strings.TrimSpace(v); v != "" {
				result = append(result, v)
			}
		}
	}
	return result
}
