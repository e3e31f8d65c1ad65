// Package recovery salvages structured analyses from malformed
// classifier output. The model is asked for strict JSON but sometimes
// wraps it in prose or code fences, truncates strings, skips commas or
// leaves brackets unbalanced. Recovery tries progressively looser
// strategies and settles for partial results over total failure.
package recovery

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// PageRecord is the loosely typed shape of one page in a classifier
// response, before sanitation.
type PageRecord struct {
	PageNumber      int              `json:"page_number"`
	PageTitle       string           `json:"page_title"`
	PageType        string           `json:"page_type"`
	PageSubtype     string           `json:"page_subtype"`
	ConfidenceScore float64          `json:"confidence_score"`
	ExtractedValues map[string]any   `json:"extracted_values"`
	TextRegions     []RegionRecord   `json:"text_regions"`
	PageMetadata    MetadataRecord   `json:"page_metadata"`
}

type RegionRecord struct {
	RegionID   string  `json:"region_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type MetadataRecord struct {
	HasHandwriting   bool   `json:"has_handwriting"`
	HasSignatures    bool   `json:"has_signatures"`
	ImageQuality     string `json:"image_quality"`
	ExtractionMethod string `json:"extraction_method"`
}

type batchResponse struct {
	Pages []PageRecord `json:"pages"`
}

// ParseBatch extracts page records from raw classifier output. The
// second result reports whether anything usable was found; the empty
// default is returned otherwise. It never panics on arbitrary input.
func ParseBatch(raw string) ([]PageRecord, bool) {
	trimmed := stripEnvelope(raw)
	if trimmed == "" {
		return nil, false
	}

	// Strict parse first.
	if pages, ok := decodeBatch(trimmed); ok {
		return pages, true
	}

	// Heuristic repair: rebalance strings, commas and brackets.
	if pages, ok := decodeBatch(Repair(trimmed)); ok {
		return pages, true
	}

	// Cut just the pages array out and parse it in isolation,
	// accepting partial results.
	fragment := gjson.Get(Repair(trimmed), "pages")
	if fragment.IsArray() {
		if pages, ok := decodePages(fragment.Raw); ok {
			return pages, true
		}
	}
	if array := gjson.Parse(Repair(trimmed)); array.IsArray() {
		if pages, ok := decodePages(array.Raw); ok {
			return pages, true
		}
	}

	return nil, false
}

func decodeBatch(candidate string) ([]PageRecord, bool) {
	var batch batchResponse
	if err := json.Unmarshal([]byte(candidate), &batch); err == nil && len(batch.Pages) > 0 {
		return batch.Pages, true
	}
	// A bare array of pages is also accepted.
	return decodePages(candidate)
}

func decodePages(candidate string) ([]PageRecord, bool) {
	var pages []PageRecord
	if err := json.Unmarshal([]byte(candidate), &pages); err == nil && len(pages) > 0 {
		return pages, true
	}
	return nil, false
}

// stripEnvelope drops prose and code fences around the JSON payload by
// cutting from the first opening brace/bracket to the last closer.
func stripEnvelope(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = strings.ReplaceAll(cleaned, "```json", "")
		cleaned = strings.ReplaceAll(cleaned, "```", "")
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(cleaned, "}]")
	if end > start {
		return cleaned[start : end+1]
	}
	// No closer at all; Repair pads the missing ones.
	return cleaned[start:]
}

// Repair runs a single character scan over candidate JSON tracking
// quote state, escapes and bracket nesting, fixing what the scan can
// prove broken: commas inserted between back-to-back close/open pairs,
// trailing commas dropped before closers, an unterminated trailing
// string closed, and missing closing brackets padded to balance.
func Repair(input string) string {
	var out strings.Builder
	out.Grow(len(input) + 8)

	var stack []byte
	inString := false
	escaped := false
	pendingComma := false

	flushComma := func(next byte) {
		if !pendingComma {
			return
		}
		pendingComma = false
		if next == '{' || next == '[' || next == '"' || isValueStart(next) {
			out.WriteByte(',')
		}
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if inString {
			out.WriteByte(ch)
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			flushComma(ch)
			inString = true
			out.WriteByte(ch)
		case '{', '[':
			flushComma(ch)
			stack = append(stack, closerFor(ch))
			out.WriteByte(ch)
		case '}', ']':
			// Drop a trailing comma left before this closer.
			trimTrailingComma(&out)
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
				out.WriteByte(ch)
				pendingComma = true
			}
			// Mismatched closers are dropped outright.
		case ',':
			pendingComma = false
			out.WriteByte(ch)
		case ' ', '\t', '\n', '\r':
			out.WriteByte(ch)
		default:
			flushComma(ch)
			pendingComma = false
			out.WriteByte(ch)
		}
	}

	if inString {
		out.WriteByte('"')
	}
	trimTrailingComma(&out)
	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteByte(stack[i])
	}
	return out.String()
}

func closerFor(opener byte) byte {
	if opener == '{' {
		return '}'
	}
	return ']'
}

func isValueStart(ch byte) bool {
	return ch == '-' || (ch >= '0' && ch <= '9') || ch == 't' || ch == 'f' || ch == 'n'
}

// trimTrailingComma removes a comma (plus trailing whitespace) from the
// end of the builder, if present.
func trimTrailingComma(out *strings.Builder) {
	current := out.String()
	trimmed := strings.TrimRight(current, " \t\n\r")
	if strings.HasSuffix(trimmed, ",") {
		next := strings.TrimRight(trimmed[:len(trimmed)-1], " \t\n\r")
		out.Reset()
		out.WriteString(next)
	}
}
