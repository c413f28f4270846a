package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var indianGrouping = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatIndianCurrency produces valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			if amount >= 0 {
				if !strings.HasPrefix(formatted, "₹") {
					t.Logf("expected ₹ prefix for %f, got %s", amount, formatted)
					return false
				}
			} else if !strings.HasPrefix(formatted, "-₹") {
				t.Logf("expected -₹ prefix for %f, got %s", amount, formatted)
				return false
			}

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("expected two decimal places for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(parts[0], "-")
			numPart = strings.TrimPrefix(numPart, "₹")
			if !indianGrouping.MatchString(numPart) {
				t.Logf("invalid grouping for %f: %s", amount, formatted)
				return false
			}

			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatIndianCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			stripped := strings.ReplaceAll(formatted, ",", "")
			stripped = strings.ReplaceAll(stripped, "₹", "")
			parsed, err := strconv.ParseFloat(stripped, 64)
			if err != nil {
				t.Logf("unparseable output for %f: %s", amount, formatted)
				return false
			}

			rounded := math.Round(amount*100) / 100
			if math.Abs(parsed-rounded) > 0.01 {
				t.Logf("value not preserved: original=%f formatted=%s parsed=%f", amount, formatted, parsed)
				return false
			}

			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatQuantity round-trips through grouping", prop.ForAll(
		func(qty int) bool {
			formatted := FormatQuantity(qty)

			stripped := strings.ReplaceAll(formatted, ",", "")
			parsed, err := strconv.Atoi(stripped)
			if err != nil {
				t.Logf("unparseable output for %d: %s", qty, formatted)
				return false
			}

			return parsed == qty
		},
		gen.IntRange(-100000000, 100000000),
	))

	properties.TestingRun(t)
}

func TestIndianNumberFormatExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{1, "₹1.00"},
		{100, "₹100.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},      // 1 lakh
		{1000000, "₹10,00,000.00"},    // 10 lakhs
		{10000000, "₹1,00,00,000.00"}, // 1 crore
		{-1234.56, "-₹1,234.56"},
		{12345678.90, "₹1,23,45,678.90"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := FormatIndianCurrency(tc.amount)
			if result != tc.expected {
				t.Errorf("FormatIndianCurrency(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	testCases := []struct {
		in       string
		maxLen   int
		expected string
	}{
		{"RELIANCE", 10, "RELIANCE"},
		{"HINDUSTANUNILEVER", 10, "HINDUST..."},
		{"ABCDEF", 3, "ABC"},
		{"", 5, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := TruncateString(tc.in, tc.maxLen)
			if result != tc.expected {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tc.in, tc.maxLen, result, tc.expected)
			}
		})
	}
}
