// Package lineage derives view dependencies from catalog definition text.
//
// Extraction is a grammar-free heuristic: identifiers directly after FROM or
// any JOIN are collected and reserved words are dropped. The Builder resolves
// those candidates against a catalog and keeps the resulting graph; the
// Traverser walks it with path-scoped cycle detection.
package lineage

import (
	"regexp"
	"sort"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespace   = regexp.MustCompile(`\s+`)

	// identPart matches one bare or quoted identifier component.
	identPart = "(?:`[^`]+`|\"[^\"]+\"|[\\p{L}\\p{N}_$]+)"

	// sourceRef matches FROM/JOIN followed by a one to three part name. The
	// optional trailing paren marks a table function call.
	sourceRef = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(` +
		identPart + `(?:\s?\.\s?` + identPart + `){0,2})(\s?\()?`)

	// namePart splits a qualified name into its components.
	namePart = regexp.MustCompile(identPart)
)

// ExtractDependencies returns the candidate object names referenced by a
// definition, sorted and deduplicated. Candidates are not validated against
// any catalog.
func ExtractDependencies(definition string) []string {
	text := StripComments(definition)
	text = whitespace.ReplaceAllString(text, " ")

	seen := make(map[string]struct{})
	for _, m := range sourceRef.FindAllStringSubmatch(text, -1) {
		if m[2] != "" {
			continue
		}
		name := trailingComponent(m[1])
		if name == "" || IsReservedWord(name) {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StripComments removes -- line comments and /* */ block comments.
func StripComments(definition string) string {
	text := blockComment.ReplaceAllString(definition, " ")
	return lineComment.ReplaceAllString(text, "")
}

// trailingComponent returns the last part of a possibly qualified name with
// quotes removed.
func trailingComponent(qualified string) string {
	parts := namePart.FindAllString(qualified, -1)
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	return strings.Trim(last, "`\"")
}
