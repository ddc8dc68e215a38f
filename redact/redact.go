/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package redact builds display text for call transcripts with detected
// PII spans masked out.
//
// The transcription provider returns word-level timestamps and a list of
// PII match spans. When the provider also supplies fully redacted text,
// that text is used verbatim; reconstruction from words and matches is
// the fallback.
package redact

import "strings"

// Marker is the placeholder substituted for each redacted word.
const Marker = "[redacted]"

// TextNotAvailable is returned when there is nothing to reconstruct from.
const TextNotAvailable = "Transcript not available"

// Word is one transcribed token with its time span in the source audio.
// Words are ordered by start offset as delivered by the provider and are
// not re-sorted.
type Word struct {
	Text          string `json:"text"`
	StartOffsetMS int64  `json:"startOffsetMs"`
	EndOffsetMS   int64  `json:"endOffsetMs"`
}

// Match is a detected sensitive-information span. Matches may overlap each
// other and may span multiple words.
type Match struct {
	StartOffsetMS int64 `json:"startOffsetMs"`
	EndOffsetMS   int64 `json:"endOffsetMs"`
}

// ReconstructText produces the display text for a transcript.
//
// If redactedText is non-empty, the provider already did the masking and it
// is returned as-is. Otherwise each word whose time span overlaps at least
// one match is replaced by Marker. Overlap is strict on both ends, so a
// zero-length word span never overlaps anything, including a match covering
// that exact instant. Malformed spans (end before start) are not an error,
// they simply never overlap.
func ReconstructText(words []Word, matches []Match, redactedText string) string {
	if redactedText != "" {
		return redactedText
	}
	if len(words) == 0 {
		return TextNotAvailable
	}
	if len(matches) == 0 {
		return JoinWords(words)
	}

	parts := make([]string, len(words))
	for i, w := range words {
		if overlapsAny(w, matches) {
			parts[i] = Marker
			continue
		}
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// JoinWords returns the plain space-joined transcript text without any masking.
func JoinWords(words []Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// A word overlaps a match only when the intersection of the two spans has
// positive length. Zero-length word spans never overlap anything, and a
// zero-length or inverted match span never redacts a word.
func overlapsAny(w Word, matches []Match) bool {
	if w.StartOffsetMS >= w.EndOffsetMS {
		return false
	}
	for _, m := range matches {
		if m.StartOffsetMS >= m.EndOffsetMS {
			continue
		}
		if w.StartOffsetMS < m.EndOffsetMS && w.EndOffsetMS > m.StartOffsetMS {
			return true
		}
	}
	return false
}
