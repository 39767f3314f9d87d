// Package normalizers provides string normalization used for duplicate
// grouping keys, address similarity and property value comparison.
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("remove_whitespace", RemoveWhitespace)
	Register("nname", NormalizeName)
	Register("norgname", NormalizeOrgName)
	Register("naddress", NormalizeAddress)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes a person's name for grouping: trim and lowercase,
// nothing more. Suffix and punctuation variants stay distinct records until
// the oracle says otherwise.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeOrgName normalizes an organization name for grouping. Corporate
// suffixes are NOT stripped: "Acme Inc" and "Acme LLC" are distinct records
// until a reviewer says otherwise.
func NormalizeOrgName(s string) string {
	return collapse(strings.ToLower(s))
}

// collapse removes punctuation and squeezes whitespace runs to one space.
func collapse(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// streetAbbreviations maps whole lowercase address words to their postal
// abbreviation. Matching is token-wise so "eastern" never loses its "east".
var streetAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"apartment": "apt",
	"suite":     "ste",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// NormalizeAddress normalizes a street address for similarity comparison:
// lowercase, strip punctuation, abbreviate well-known address words and
// squeeze whitespace.
func NormalizeAddress(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, strings.ToLower(s))

	words := strings.Fields(s)
	for i, word := range words {
		if abbr, ok := streetAbbreviations[word]; ok {
			words[i] = abbr
		}
	}

	return strings.Join(words, " ")
}

// NormalizePostalCode keeps the digits of a US postal code, accepting the
// five and nine digit forms
func NormalizePostalCode(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 5 || len(digits) == 9 {
		return digits
	}
	return ""
}
