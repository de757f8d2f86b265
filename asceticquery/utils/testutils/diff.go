package testutils

import (
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// AssertTextEqual compares rendered text ignoring surrounding whitespace and
// prints a character diff on mismatch.
func AssertTextEqual(t testing.TB, expected, actual string) bool {
	t.Helper()
	expected = normalize(expected)
	actual = normalize(actual)
	if expected == actual {
		return true
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	t.Errorf("text mismatch (-expected +actual):\n%s", dmp.DiffPrettyText(diffs))
	return false
}

// normalize collapses runs of whitespace so multi-line literals can be
// compared with single-line output.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
