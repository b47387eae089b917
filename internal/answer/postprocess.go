// Package answer post-processes a turn's assistant message: citation
// extraction, marker stripping, URL mining, and structured-JSON recovery.
package answer

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/telagent/gateway/internal/agentsvc"
	"github.com/telagent/gateway/internal/domain"
)

var (
	urlRE           = regexp.MustCompile(`https?://[^\s\])]+`)
	markerRE        = regexp.MustCompile(`【[^】]+】`)
	searchMarkerRE  = regexp.MustCompile(`【\d+:\d+†source】`)
	rescueURLRE     = regexp.MustCompile(`https?://[^\s'">,]+`)
	jsonFenceRE     = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")
	bareObjectRE    = regexp.MustCompile(`(?s)(\{.*\})`)
	freshnessWords  = []string{"news", "latest", "today", "breaking", "update"}
	searchResultsFn = func(query string) string {
		return "https://www.bing.com/news/search?" + url.Values{"q": {query}}.Encode()
	}
)

// Process turns the selected assistant message into a displayable answer
// with deduplicated sources. userQuery feeds the fallback-source
// heuristic only.
func Process(msg *agentsvc.ThreadMessage, userQuery string) *domain.Answer {
	text, annSources := collect(msg)
	if text == "" {
		return &domain.Answer{Answer: "(no assistant message)", AnswerMD: "(no assistant message)", Sources: []domain.Source{}}
	}

	if obj := ExtractJSONBlock(text); obj != nil {
		_, hasMD := obj["answer_md"]
		_, hasAnswer := obj["answer"]
		if hasMD || hasAnswer {
			return fromStructured(obj, annSources, userQuery)
		}
	}

	clean, mined := CleanAndMine(text, userQuery)
	return &domain.Answer{
		Answer:   clean,
		AnswerMD: clean,
		Sources:  DedupSources(append(annSources, mined...)),
	}
}

// collect concatenates the message's text blocks in block order and maps
// annotations to Source entries.
func collect(msg *agentsvc.ThreadMessage) (string, []domain.Source) {
	if msg == nil {
		return "", nil
	}
	var chunks []string
	var sources []domain.Source
	for _, block := range msg.Content {
		if block.Text == nil {
			continue
		}
		chunks = append(chunks, block.Text.Value)
		for _, an := range block.Text.Annotations {
			sources = append(sources, annotationSources(an)...)
		}
	}
	return strings.Join(chunks, "\n\n"), sources
}

func annotationSources(an agentsvc.Annotation) []domain.Source {
	switch {
	case an.FileCitation != nil:
		fileID := an.FileCitation.FileID
		if fileID == "" {
			fileID = "unknown"
		}
		return []domain.Source{{Title: "Document citation", FileID: fileID, Quote: an.FileCitation.Quote}}
	case an.FilePath != nil:
		fileID := an.FilePath.FileID
		if fileID == "" {
			fileID = "unknown"
		}
		return []domain.Source{{Title: "File attachment", FileID: fileID}}
	case an.URLCitation != nil && an.URLCitation.URL != "":
		return []domain.Source{{Title: "Source", URL: an.URLCitation.URL}}
	default:
		// Malformed or unrecognized annotation: scan its raw bytes for a
		// bare URL as a last resort.
		if m := rescueURLRE.FindString(string(an.Raw)); m != "" {
			return []domain.Source{{Title: "Source", URL: m}}
		}
		return nil
	}
}

func fromStructured(obj map[string]json.RawMessage, annSources []domain.Source, userQuery string) *domain.Answer {
	answerMD := stringField(obj, "answer_md")
	answerText := stringField(obj, "answer")
	if answerMD == "" {
		answerMD = answerText
	}

	var sources []domain.Source
	if raw, ok := obj["sources"]; ok {
		// A non-list or malformed sources field degrades to none.
		_ = json.Unmarshal(raw, &sources)
	}

	if len(sources) == 0 {
		var mined []domain.Source
		answerMD, mined = CleanAndMine(answerMD, userQuery)
		sources = DedupSources(append(annSources, mined...))
	} else {
		sources = DedupSources(append(sources, annSources...))
	}

	answer := answerText
	if answer == "" {
		answer = answerMD
	}
	return &domain.Answer{Answer: answer, AnswerMD: answerMD, Sources: sources}
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// CleanAndMine strips bracketed citation markers from the text and mines
// literal URLs as fallback sources, first-seen order, exact-string
// dedup. When nothing was mined it may synthesize one web-search Source:
// either a search-engine marker was present pre-strip, or the user query
// carries a freshness keyword.
func CleanAndMine(md, userQuery string) (string, []domain.Source) {
	if md == "" {
		return md, nil
	}

	hadSearchMarkers := searchMarkerRE.MatchString(md)
	clean := markerRE.ReplaceAllString(md, "")

	seen := make(map[string]bool)
	var sources []domain.Source
	for _, u := range urlRE.FindAllString(clean, -1) {
		if seen[u] {
			continue
		}
		seen[u] = true
		sources = append(sources, domain.Source{Title: "Source", URL: u})
	}

	if len(sources) == 0 && userQuery != "" {
		if hadSearchMarkers || hasFreshnessKeyword(userQuery) {
			sources = append(sources, domain.Source{
				Title:     "Web search results",
				URL:       searchResultsFn(userQuery),
				Publisher: "Bing",
			})
		}
	}

	return strings.TrimSpace(clean), sources
}

func hasFreshnessKeyword(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range freshnessWords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// ExtractJSONBlock recovers a top-level JSON object from assistant text:
// a fenced code block first, else the first brace-delimited object by
// greedy match. Returns nil when nothing parses.
func ExtractJSONBlock(text string) map[string]json.RawMessage {
	if text == "" {
		return nil
	}
	if m := jsonFenceRE.FindStringSubmatch(text); m != nil {
		if obj := parseObject(m[1]); obj != nil {
			return obj
		}
	}
	if m := bareObjectRE.FindStringSubmatch(text); m != nil {
		if obj := parseObject(m[1]); obj != nil {
			return obj
		}
	}
	return nil
}

func parseObject(candidate string) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil
	}
	return obj
}

// DedupSources drops duplicate sources by dedup key, first occurrence
// wins, insertion order preserved. Idempotent.
func DedupSources(items []domain.Source) []domain.Source {
	seen := make(map[string]bool, len(items))
	out := make([]domain.Source, 0, len(items))
	for _, s := range items {
		key := s.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
