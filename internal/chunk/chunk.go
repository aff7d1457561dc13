// Package chunk splits outbound text into platform-size-bounded
// segments. Splitting is greedy left-to-right; concatenating the chunks
// reproduces the input exactly.
package chunk

// Split divides text into chunks of at most capacity bytes. The result
// is empty for empty input; no chunk is ever empty.
func Split(text string, capacity int) []string {
	if text == "" || capacity <= 0 {
		return nil
	}

	chunks := make([]string, 0, len(text)/capacity+1)
	for start := 0; start < len(text); {
		end := start + capacity
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		start = end
	}
	return chunks
}

// SplitWithPrefix prepends prefix to the first chunk, budgeting it out of
// that chunk's capacity only; the remainder is split at full capacity.
// Used for author labels like "**name:** " on mirrored messages.
func SplitWithPrefix(prefix, text string, capacity int) []string {
	if prefix == "" {
		return Split(text, capacity)
	}

	budget := capacity - len(prefix)
	if budget <= 0 {
		// Prefix alone exceeds the capacity; send it as its own chunk
		// rather than dropping content.
		return append([]string{prefix}, Split(text, capacity)...)
	}

	if len(text) <= budget {
		return []string{prefix + text}
	}

	chunks := []string{prefix + text[:budget]}
	return append(chunks, Split(text[budget:], capacity)...)
}
