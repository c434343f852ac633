package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	// Use for single-line labels: display texts, titles, group names.
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated content with basic formatting.
	// Permits: <p>, <b>, <i>, <em>, <strong>, <a>, <ul>, <ol>, <li>, <br>
	UGCPolicy = bluemonday.UGCPolicy()

	// tagStart matches the opening of an element, end tag, comment or
	// processing instruction. A bare "<" followed by a space or digit is text.
	tagStart = regexp.MustCompile(`<[a-zA-Z!/?]`)
)

// maxStripPasses bounds how often Text re-strips output whose decoded
// entities formed new tags.
const maxStripPasses = 4

// HasMarkup reports whether input contains anything an HTML parser would
// treat as a tag.
func HasMarkup(input string) bool {
	return tagStart.MatchString(input)
}

// Text returns input as plain text. Input without markup is returned
// unchanged, so "Q&A" and a literal "&lt;b&gt;" are stored as typed. When
// tags are present they are stripped and the remaining entities decoded once.
func Text(input string) string {
	if !HasMarkup(input) {
		return input
	}
	out := input
	for range maxStripPasses {
		out = html.UnescapeString(StrictPolicy.Sanitize(out))
		if !HasMarkup(out) {
			return out
		}
	}
	return StrictPolicy.Sanitize(out)
}

// HTML sanitizes a text block body. Bodies without markup are stored
// literally; bodies with tags keep safe formatting and lose <script>,
// <iframe>, event handlers and style attributes.
func HTML(input string) string {
	if !HasMarkup(input) {
		return input
	}
	return UGCPolicy.Sanitize(input)
}

// Label trims surrounding whitespace and strips markup. Used for fields that
// are displayed inline, such as group names.
func Label(input string) string {
	return strings.TrimSpace(Text(input))
}
