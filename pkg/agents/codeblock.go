package agents

import (
	"regexp"
	"strings"
)

var (
	pythonBlockRe = regexp.MustCompile("(?s)```python(.*?)```")
	anyBlockRe    = regexp.MustCompile("(?s)```[\\w+-]*\\n(.*?)```")
	fullPythonRe  = regexp.MustCompile("```python[\\s\\S]*?```")
)

// PythonBlocks returns the trimmed bodies of all ```python fenced blocks.
func PythonBlocks(text string) []string {
	ret := []string{}
	for _, m := range pythonBlockRe.FindAllStringSubmatch(text, -1) {
		ret = append(ret, strings.TrimSpace(m[1]))
	}
	return ret
}

// LastPythonBlock returns the body of the last python block in text.
func LastPythonBlock(text string) (string, bool) {
	blocks := PythonBlocks(text)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[len(blocks)-1], true
}

// LastCodeBlock prefers python blocks and falls back to any fenced block.
func LastCodeBlock(text string) (string, bool) {
	if b, ok := LastPythonBlock(text); ok {
		return b, true
	}
	matches := anyBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

// StripDuplicateCode removes from summary every python block that also appears verbatim in answer.
func StripDuplicateCode(summary, answer string) string {
	for _, block := range fullPythonRe.FindAllString(answer, -1) {
		summary = strings.ReplaceAll(summary, block, "")
	}
	return summary
}
