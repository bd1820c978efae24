package grammar

// Correct applies the first replacement of every match to text, left to
// right. Matches without replacements are skipped, as is any match whose
// span no longer holds the original text because an earlier replacement
// overlapped it.
func Correct(text string, matches []Match) string {
	source := []rune(text)
	runes := []rune(text)
	shift := 0
	for _, m := range matches {
		if len(m.Replacements) == 0 || m.Offset < 0 || m.Length < 0 || m.Offset+m.Length > len(source) {
			continue
		}
		original := source[m.Offset : m.Offset+m.Length]

		from := m.Offset + shift
		to := from + m.Length
		if from < 0 || to > len(runes) || string(runes[from:to]) != string(original) {
			continue
		}

		repl := []rune(m.Replacements[0])
		out := make([]rune, 0, len(runes)-m.Length+len(repl))
		out = append(out, runes[:from]...)
		out = append(out, repl...)
		out = append(out, runes[to:]...)
		runes = out
		shift += len(repl) - m.Length
	}
	return string(runes)
}

// span returns text[offset:offset+length] in runes, clamped to bounds.
func span(runes []rune, offset, length int) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(runes) {
		offset = len(runes)
	}
	end := offset + length
	if length < 0 || end > len(runes) {
		end = len(runes)
	}
	return string(runes[offset:end])
}
