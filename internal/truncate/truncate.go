// Package truncate shrinks oversized tool output with head+tail strategies
// that keep the parts a model needs most.
package truncate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// codeHeadRatio biases code toward its beginning, where declarations
	// live. Logs bias toward the end, where the failure usually is.
	codeHeadRatio = 0.7
	logHeadRatio  = 0.4
	textHeadRatio = 0.5

	// MinTruncationLength is the byte length under which content passes
	// through untouched.
	MinTruncationLength = 100

	// ByteFuseLimit is the hard cap applied after token truncation.
	ByteFuseLimit = 100_000

	charsPerToken = 4
)

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// ContentType selects the truncation strategy.
type ContentType int

const (
	TypeText ContentType = iota
	TypeCode
	TypeLog
)

func (t ContentType) String() string {
	switch t {
	case TypeCode:
		return "code"
	case TypeLog:
		return "log"
	default:
		return "text"
	}
}

func (t ContentType) headRatio() float64 {
	switch t {
	case TypeCode:
		return codeHeadRatio
	case TypeLog:
		return logHeadRatio
	default:
		return textHeadRatio
	}
}

// DetectContentType classifies content heuristically.
func DetectContentType(content string) ContentType {
	codeChars := 0
	for _, r := range content {
		switch r {
		case '{', '}', '[', ']', '(', ')', ';', ':':
			codeChars++
		}
	}
	total := len(content)
	if total < 1 {
		total = 1
	}
	codeRatio := float64(codeChars) / float64(total)

	hasTimestamps := strings.Contains(content, "20") && strings.Contains(content, ":")
	hasLogLevels := strings.Contains(content, "INFO") ||
		strings.Contains(content, "WARN") ||
		strings.Contains(content, "ERROR") ||
		strings.Contains(content, "DEBUG")

	switch {
	case hasTimestamps && hasLogLevels:
		return TypeLog
	case codeRatio > 0.02:
		return TypeCode
	default:
		return TypeText
	}
}

// Result describes one truncation pass.
type Result struct {
	Content       string
	Truncated     bool
	OriginalBytes int
	ResultBytes   int
	LinesRemoved  int
	TokensSaved   int
}

func passThrough(content string) Result {
	return Result{
		Content:       content,
		OriginalBytes: len(content),
		ResultBytes:   len(content),
	}
}

// ByTokens truncates content to roughly maxTokens using head+tail
// preservation.
func ByTokens(content string, maxTokens int) Result {
	originalTokens := estimateTokens(content)
	if originalTokens <= maxTokens || len(content) < MinTruncationLength {
		return passThrough(content)
	}

	headRatio := DetectContentType(content).headRatio()
	ratio := float64(maxTokens) / float64(originalTokens)
	targetBytes := int(float64(len(content)) * ratio)
	headBytes := int(float64(targetBytes) * headRatio)
	tailBytes := targetBytes - headBytes
	if tailBytes < 0 {
		tailBytes = 0
	}
	return headTail(content, headBytes, tailBytes)
}

// ByBytes truncates content to roughly maxBytes using head+tail preservation.
func ByBytes(content string, maxBytes int) Result {
	if len(content) <= maxBytes || len(content) < MinTruncationLength {
		return passThrough(content)
	}
	headRatio := DetectContentType(content).headRatio()
	headBytes := int(float64(maxBytes) * headRatio)
	tailBytes := maxBytes - headBytes
	if tailBytes < 0 {
		tailBytes = 0
	}
	return headTail(content, headBytes, tailBytes)
}

func headTail(content string, headBytes, tailBytes int) Result {
	originalLines := countLines(content)

	headEnd := charBoundary(content, headBytes)
	tailStart := charBoundaryReverse(content, tailBytes)

	if headEnd >= tailStart {
		// Windows overlap, so cut a single prefix instead.
		safeEnd := charBoundary(content, headBytes+tailBytes)
		cut := content[:safeEnd]
		return Result{
			Content:       cut,
			Truncated:     true,
			OriginalBytes: len(content),
			ResultBytes:   len(cut),
			LinesRemoved:  maxInt(0, originalLines-countLines(cut)),
			TokensSaved:   maxInt(0, estimateTokens(content)-estimateTokens(cut)),
		}
	}

	head := content[:headEnd]
	tail := content[tailStart:]
	middleLines := countLines(content[headEnd:tailStart])

	result := fmt.Sprintf("%s\n\n[... %d lines truncated ...]\n\n%s",
		strings.TrimRight(head, " \t\r\n"), middleLines, strings.TrimLeft(tail, " \t\r\n"))

	return Result{
		Content:       result,
		Truncated:     true,
		OriginalBytes: len(content),
		ResultBytes:   len(result),
		LinesRemoved:  middleLines,
		TokensSaved:   maxInt(0, estimateTokens(content)-estimateTokens(result)),
	}
}

// charBoundary returns the closest rune boundary at or before byteIndex.
func charBoundary(s string, byteIndex int) int {
	if byteIndex >= len(s) {
		return len(s)
	}
	idx := byteIndex
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

// charBoundaryReverse returns a rune boundary at or after len(s)-bytesFromEnd.
func charBoundaryReverse(s string, bytesFromEnd int) int {
	if bytesFromEnd >= len(s) {
		return 0
	}
	idx := len(s) - bytesFromEnd
	for idx < len(s) && !utf8.RuneStart(s[idx]) {
		idx++
	}
	return idx
}

// ToBytes hard-caps content at maxBytes, cutting 50 bytes early to leave room
// for the fuse marker.
func ToBytes(content string, maxBytes int) Result {
	if len(content) <= maxBytes {
		return passThrough(content)
	}
	cut := maxBytes - 50
	if cut < 0 {
		cut = 0
	}
	safeEnd := charBoundary(content, cut)
	truncated := content[:safeEnd] + "\n[... content truncated by byte fuse ...]"
	return Result{
		Content:       truncated,
		Truncated:     true,
		OriginalBytes: len(content),
		ResultBytes:   len(truncated),
		LinesRemoved:  countLines(content[safeEnd:]),
		TokensSaved:   maxInt(0, estimateTokens(content)-estimateTokens(truncated)),
	}
}

// AggregateToolOutput applies token truncation followed by the byte fuse.
func AggregateToolOutput(output string, maxTokens int) Result {
	result := ByTokens(output, maxTokens)
	if len(result.Content) > ByteFuseLimit {
		fused := ToBytes(result.Content, ByteFuseLimit)
		fused.OriginalBytes = len(output)
		fused.TokensSaved = maxInt(0, estimateTokens(output)-estimateTokens(fused.Content))
		return fused
	}
	return result
}

// JSONOutput truncates JSON, preferring structural summarization over blind
// head+tail cuts. Unparseable input falls back to generic truncation.
func JSONOutput(raw string, maxTokens int) Result {
	originalTokens := estimateTokens(raw)
	if originalTokens <= maxTokens {
		return passThrough(raw)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		summary := summarizeValue(value, 3)
		if out, err := json.MarshalIndent(summary, "", "  "); err == nil {
			s := string(out)
			if estimateTokens(s) <= maxTokens {
				return Result{
					Content:       s,
					Truncated:     true,
					OriginalBytes: len(raw),
					ResultBytes:   len(s),
					TokensSaved:   maxInt(0, originalTokens-estimateTokens(s)),
				}
			}
		}
	}
	return ByTokens(raw, maxTokens)
}

func summarizeValue(value any, maxDepth int) any {
	if maxDepth == 0 {
		switch v := value.(type) {
		case []any:
			return fmt.Sprintf("[... %d items ...]", len(v))
		case map[string]any:
			return fmt.Sprintf("{... %d keys ...}", len(v))
		default:
			return value
		}
	}

	switch v := value.(type) {
	case []any:
		if len(v) > 5 {
			out := make([]any, 0, 4)
			for _, item := range v[:3] {
				out = append(out, summarizeValue(item, maxDepth-1))
			}
			out = append(out, fmt.Sprintf("... %d more items ...", len(v)-3))
			return out
		}
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, summarizeValue(item, maxDepth-1))
		}
		return out
	case map[string]any:
		// Sorted keys keep the kept subset stable across calls.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for i, k := range keys {
			if i >= 10 {
				out["..."] = fmt.Sprintf("%d more keys", len(v)-10)
				break
			}
			out[k] = summarizeValue(v[k], maxDepth-1)
		}
		return out
	case string:
		if len(v) > 200 {
			return v[:charBoundary(v, 200)] + "... [truncated]"
		}
		return v
	default:
		return value
	}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
