/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeWords(texts []string, spans [][2]int64) []Word {
	words := make([]Word, len(texts))
	for i := range texts {
		words[i] = Word{Text: texts[i], StartOffsetMS: spans[i][0], EndOffsetMS: spans[i][1]}
	}
	return words
}

func TestReconstructTextMasksOverlappingWords(t *testing.T) {
	words := makeWords(
		[]string{"my", "name", "is", "John", "Smith", "calling"},
		[][2]int64{{0, 200}, {200, 400}, {400, 600}, {600, 900}, {900, 1200}, {1200, 1500}},
	)
	matches := []Match{{StartOffsetMS: 600, EndOffsetMS: 1200}}

	got := ReconstructText(words, matches, "")
	require.Equal(t, "my name is [redacted] [redacted] calling", got)
}

func TestReconstructTextPrefersProviderRedactedText(t *testing.T) {
	words := makeWords([]string{"hello"}, [][2]int64{{0, 100}})
	matches := []Match{{StartOffsetMS: 0, EndOffsetMS: 100}}

	got := ReconstructText(words, matches, "already [redacted] upstream")
	require.Equal(t, "already [redacted] upstream", got)
}

func TestReconstructTextOverlapIsStrict(t *testing.T) {
	tests := []struct {
		name  string
		word  Word
		match Match
		want  string
	}{
		{
			name:  "match equals word span",
			word:  Word{Text: "John", StartOffsetMS: 100, EndOffsetMS: 200},
			match: Match{StartOffsetMS: 100, EndOffsetMS: 200},
			want:  Marker,
		},
		{
			name:  "match ends where word starts",
			word:  Word{Text: "John", StartOffsetMS: 200, EndOffsetMS: 300},
			match: Match{StartOffsetMS: 100, EndOffsetMS: 200},
			want:  "John",
		},
		{
			name:  "match starts where word ends",
			word:  Word{Text: "John", StartOffsetMS: 100, EndOffsetMS: 200},
			match: Match{StartOffsetMS: 200, EndOffsetMS: 300},
			want:  "John",
		},
		{
			name:  "zero-length word inside match",
			word:  Word{Text: "uh", StartOffsetMS: 150, EndOffsetMS: 150},
			match: Match{StartOffsetMS: 100, EndOffsetMS: 200},
			want:  "uh",
		},
		{
			name:  "zero-length match inside word",
			word:  Word{Text: "John", StartOffsetMS: 100, EndOffsetMS: 200},
			match: Match{StartOffsetMS: 150, EndOffsetMS: 150},
			want:  "John",
		},
		{
			name:  "malformed match with end before start",
			word:  Word{Text: "John", StartOffsetMS: 100, EndOffsetMS: 200},
			match: Match{StartOffsetMS: 300, EndOffsetMS: 50},
			want:  "John",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A second word keeps the match list non-empty path exercised with context.
			got := ReconstructText([]Word{tt.word}, []Match{tt.match}, "")
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReconstructTextEmptyMatches(t *testing.T) {
	words := makeWords([]string{"hi", "there"}, [][2]int64{{0, 100}, {100, 200}})
	require.Equal(t, "hi there", ReconstructText(words, nil, ""))
}

func TestReconstructTextEmptyWords(t *testing.T) {
	require.Equal(t, TextNotAvailable, ReconstructText(nil, nil, ""))
	require.Equal(t, TextNotAvailable, ReconstructText(nil, []Match{{0, 100}}, ""))
	require.Equal(t, "provider text", ReconstructText(nil, nil, "provider text"))
}

func TestReconstructTextEmptyWordText(t *testing.T) {
	words := makeWords([]string{"a", "", "b"}, [][2]int64{{0, 100}, {100, 200}, {200, 300}})
	require.Equal(t, "a  b", ReconstructText(words, []Match{{500, 600}}, ""))
}

func TestReconstructTextMatchSpansMultipleWords(t *testing.T) {
	words := makeWords(
		[]string{"card", "number", "four", "two", "one"},
		[][2]int64{{0, 100}, {100, 250}, {250, 400}, {400, 500}, {500, 650}},
	)
	matches := []Match{{StartOffsetMS: 240, EndOffsetMS: 520}}

	got := ReconstructText(words, matches, "")
	require.Equal(t, "card [redacted] [redacted] [redacted] [redacted]", got)
}

func TestTermScanner(t *testing.T) {
	scanner := NewTermScanner([]string{"Acme Corp", "guaranteed returns", "wire transfer"})

	found := scanner.Scan("They asked about GUARANTEED returns and a wire transfer option.")
	require.Equal(t, []string{"guaranteed returns", "wire transfer"}, found)

	require.Nil(t, scanner.Scan("nothing to see here"))
	require.Nil(t, NewTermScanner(nil).Scan("guaranteed returns"))
}
