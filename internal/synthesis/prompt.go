package synthesis

import (
	"fmt"
	"slices"
	"strings"

	"terport/internal/terport"
)

const (
	defaultMaxFacts = 40

	factsHeading = "## Facts considered"

	systemPrompt = `You are a research writer producing long-form reference documents about terpenes.
Write in neutral, precise English. Respond with a single markdown document: start with one
level-1 heading (the document title), then sections with level-2 headings. Do not wrap the
document in code fences and do not add commentary before or after it.`

	evidenceInstruction = `Ground every factual claim in the facts listed above. When you rely on a fact,
name its source endpoint in parentheses. Do not invent facts or sources that are not listed.`

	noEvidenceInstruction = `No knowledge-base facts were retrieved for this topic. Answer the research
questions from general knowledge only. Do not cite, quote, or refer to knowledge-base sources,
endpoints, or retrieved facts.`
)

// Prompt is the rendered request for one topic.
type Prompt struct {
	System          string
	User            string
	FactsConsidered int
}

// BuildPrompt renders the prompt for topic. At most maxFacts facts are
// embedded, chosen by descending confidence; facts without a confidence sort
// last and ties keep their aggregation order.
func BuildPrompt(topic terport.TopicSpec, facts []terport.ResearchFact, maxFacts int) Prompt {
	if maxFacts <= 0 {
		maxFacts = defaultMaxFacts
	}
	digest := selectFacts(facts, maxFacts)

	var b strings.Builder
	fmt.Fprintf(&b, "# Topic\n%s\n", strings.TrimSpace(topic.Title))
	if topic.Category != "" {
		fmt.Fprintf(&b, "\nCategory: %s\n", topic.Category)
	}

	questions := topic.ResearchQuestions
	if len(questions) == 0 {
		questions = []string{topic.Title}
	}
	b.WriteString("\n## Research questions\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(q))
	}

	if len(digest) > 0 {
		fmt.Fprintf(&b, "\n%s (%d)\n", factsHeading, len(digest))
		for _, fact := range digest {
			b.WriteString("- ")
			b.WriteString(formatFact(fact))
			b.WriteByte('\n')
		}
		b.WriteString("\n")
		b.WriteString(evidenceInstruction)
	} else {
		b.WriteString("\n")
		b.WriteString(noEvidenceInstruction)
	}
	b.WriteString("\n")

	return Prompt{
		System:          systemPrompt,
		User:            b.String(),
		FactsConsidered: len(digest),
	}
}

func selectFacts(facts []terport.ResearchFact, limit int) []terport.ResearchFact {
	if len(facts) == 0 {
		return nil
	}
	ordered := slices.Clone(facts)
	slices.SortStableFunc(ordered, func(a, b terport.ResearchFact) int {
		switch {
		case a.Confidence == nil && b.Confidence == nil:
			return 0
		case a.Confidence == nil:
			return 1
		case b.Confidence == nil:
			return -1
		case *a.Confidence > *b.Confidence:
			return -1
		case *a.Confidence < *b.Confidence:
			return 1
		default:
			return 0
		}
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

func formatFact(fact terport.ResearchFact) string {
	line := fmt.Sprintf("%s | %s | %s (source: %s", fact.Subject, fact.Predicate, fact.Object, fact.SourceEndpoint)
	if fact.Confidence != nil {
		line += fmt.Sprintf(", confidence %.2f", *fact.Confidence)
	}
	return line + ")"
}
