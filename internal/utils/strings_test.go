package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []string
		expected []string
	}{
		{name: "no input", inputs: nil, expected: nil},
		{name: "empty string", inputs: []string{""}, expected: nil},
		{name: "only separators", inputs: []string{" , ,"}, expected: nil},
		{name: "single value", inputs: []string{"VOO"}, expected: []string{"VOO"}},
		{name: "varied spacing", inputs: []string{"VOO,  QQQM , IWM"}, expected: []string{"VOO", "QQQM", "IWM"}},
		{name: "repeated parameter", inputs: []string{"VOO,AGG", "IWM"}, expected: []string{"VOO", "AGG", "IWM"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.inputs...))
		})
	}
}
