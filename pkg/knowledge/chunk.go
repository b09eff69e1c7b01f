package knowledge

import (
	"strings"
	"unicode"
)

const DefaultChunkSize = 800

// SplitSentences splits after '.', '!' or '?' when followed by whitespace.
func SplitSentences(text string) []string {
	ret := []string{}
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		ret = append(ret, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		ret = append(ret, string(runes[start:]))
	}
	return ret
}

// ChunkText groups sentences into chunks of roughly size characters. Each new
// chunk starts with the last sentence of the previous one so context carries
// over. Consecutive duplicate chunks are dropped.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	chunks := []string{}
	current := []string{}
	length := 0
	for _, sentence := range SplitSentences(text) {
		if length+len(sentence) > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			last := current[len(current)-1]
			current = []string{last}
			length = len(last)
		}
		current = append(current, sentence)
		length += len(sentence) + 1
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	ret := []string{}
	for _, c := range chunks {
		if len(ret) > 0 && ret[len(ret)-1] == c {
			continue
		}
		ret = append(ret, c)
	}
	return ret
}
