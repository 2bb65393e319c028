package voice

import (
	"strings"
	"unicode"
)

func speakingRate(text string, duration float64) Rate {
	words := strings.Fields(text)
	r := Rate{WordCount: len(words)}
	for _, w := range words {
		r.SyllableCount += CountSyllables(w)
	}
	if duration > 0 {
		r.WordsPerMinute = float64(r.WordCount) / duration * 60
		r.SyllablesPerSecond = float64(r.SyllableCount) / duration
	}
	return r
}

// CountSyllables estimates English syllables by counting vowel groups, then
// correcting for a silent trailing "e", the "-es"/"-ed" endings and the
// "-ological" cluster. Any word with letters has at least one syllable.
func CountSyllables(word string) int {
	w := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, word)
	if w == "" {
		return 0
	}

	count := 0
	prevVowel := false
	for _, r := range w {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}

	switch {
	case strings.HasSuffix(w, "es") || strings.HasSuffix(w, "ed"):
		if count > 1 && !voicedSuffix(w) {
			count--
		}
	case strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le"):
		if count > 1 {
			count--
		}
	}
	if strings.Contains(w, "ological") {
		count++
	}
	return max(count, 1)
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

// voicedSuffix reports endings where "-es"/"-ed" is pronounced: "wanted",
// "faded", "boxes", "places".
func voicedSuffix(w string) bool {
	stem := w[:len(w)-2]
	if strings.HasSuffix(w, "ed") {
		return strings.HasSuffix(stem, "t") || strings.HasSuffix(stem, "d")
	}
	for _, s := range []string{"s", "x", "z", "ch", "sh", "c", "g"} {
		if strings.HasSuffix(stem, s) {
			return true
		}
	}
	return false
}
