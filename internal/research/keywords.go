package research

import (
	"fmt"
	"strings"
	"unicode"
)

const maxKeywords = 3

var stopwords = map[string]struct{}{
	"about": {}, "also": {}, "does": {}, "from": {}, "have": {}, "been": {},
	"into": {}, "such": {}, "that": {}, "their": {}, "there": {}, "these": {},
	"this": {}, "what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"with": {}, "would": {}, "known": {}, "exists": {}, "studied": {},
	"reported": {}, "evidence": {}, "effects": {}, "effect": {}, "plants": {},
	"produce": {}, "occur": {}, "naturally": {},
}

// Keywords extracts up to three lower-cased search terms from a question.
func Keywords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := map[string]struct{}{}
	var out []string
	for _, field := range fields {
		field = strings.Trim(field, "-")
		if len([]rune(field)) < 4 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// KeywordQuery builds a SPARQL SELECT matching subjects whose rdfs:label
// contains any keyword of question.
func KeywordQuery(question string, limit int) string {
	if limit <= 0 {
		limit = defaultResultLimit
	}
	keywords := Keywords(question)
	if len(keywords) == 0 {
		keywords = []string{strings.ToLower(strings.TrimSpace(question))}
	}
	filters := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		filters = append(filters, fmt.Sprintf("CONTAINS(LCASE(STR(?label)), %q)", kw))
	}
	return fmt.Sprintf(`PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
SELECT ?s ?p ?o WHERE {
  ?s rdfs:label ?label .
  FILTER(%s)
  ?s ?p ?o .
  FILTER(isLiteral(?o))
}
LIMIT %d`, strings.Join(filters, " || "), limit)
}
