// Package processing turns raw question records into clustered topics:
// text normalization, embedding, and density-based clustering.
package processing

import (
	"regexp"
	"strings"
)

// Normalizer standardizes question text from different platforms into a
// consistent form for embedding.
//
// Steps:
//  1. Remove platform-specific artifacts (flairs, tags, markdown)
//  2. Expand common abbreviations
//  3. Normalize whitespace and punctuation
//  4. Append a question mark when the text reads as a question
//
// Side-effect free and deterministic; normalizing already-normalized text is
// a no-op.
type Normalizer struct{}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// platformArtifacts holds per-platform noise patterns to strip
var platformArtifacts = map[string][]*regexp.Regexp{
	"reddit": {
		regexp.MustCompile(`(?i)^\[.*?\]\s*`),     // [Discussion], [Help], etc.
		regexp.MustCompile(`(?i)\s*\[.*?\]\s*$`),  // Trailing flairs
		regexp.MustCompile(`(?i)\(x-?post.*?\)`),  // Cross-post mentions
		regexp.MustCompile(`(?i)/r/\w+`),          // Subreddit references
		regexp.MustCompile(`(?i)\bu/\w+`),         // User references
		regexp.MustCompile(`(?i)edit\d*:.*$`),     // Edits
	},
	"stackexchange": {
		regexp.MustCompile(`(?i)\[closed\]`),
		regexp.MustCompile(`(?i)\[duplicate\]`),
		regexp.MustCompile(`(?i)\[on hold\]`),
		regexp.MustCompile(`(?i)\[migrated\]`),
	},
}

// abbreviation expansion, applied in order and case-insensitively
type abbreviation struct {
	pattern   *regexp.Regexp
	expansion string
}

var abbreviations = []abbreviation{
	{regexp.MustCompile(`(?i)\bgpt\b`), "GPT"},
	{regexp.MustCompile(`(?i)\bgpt-?4\b`), "GPT-4"},
	{regexp.MustCompile(`(?i)\bgpt-?3\.?5\b`), "GPT-3.5"},
	{regexp.MustCompile(`(?i)\bllm\b`), "large language model"},
	{regexp.MustCompile(`(?i)\bllms\b`), "large language models"},
	{regexp.MustCompile(`(?i)\bml\b`), "machine learning"},
	{regexp.MustCompile(`(?i)\bai\b`), "artificial intelligence"},
	{regexp.MustCompile(`(?i)\bnlp\b`), "natural language processing"},
	{regexp.MustCompile(`(?i)\brag\b`), "retrieval augmented generation"},
	{regexp.MustCompile(`(?i)\bapi\b`), "API"},
	{regexp.MustCompile(`(?i)\beli5\b`), "explain like I'm 5"},
}

// markdown cleanup, keeping inner text
var markdownPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*(.*?)\*\*`),        // Bold
	regexp.MustCompile(`\*(.*?)\*`),            // Italic
	regexp.MustCompile(`~~(.*?)~~`),            // Strikethrough
	regexp.MustCompile("`(.*?)`"),              // Inline code
	regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), // Links - keep text, drop URL
}

var (
	repeatedQuestion    = regexp.MustCompile(`\?{2,}`)
	repeatedExclamation = regexp.MustCompile(`!{2,}`)
	repeatedDots        = regexp.MustCompile(`\.{3,}`)
)

// knownEntities are AI product and company names recognized as key entities
var knownEntities = []string{
	"ChatGPT", "GPT-4", "GPT-3.5", "Claude", "Gemini", "Bard",
	"OpenAI", "Anthropic", "Google", "Microsoft", "Meta",
	"Copilot", "Midjourney", "Stable Diffusion", "DALL-E", "Sora",
	"LangChain", "Hugging Face", "Ollama", "Llama", "Mistral",
}

// questionStarters are first words that mark a sentence as a question
var questionStarters = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"who": true, "which": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "is": true, "are": true, "do": true,
	"does": true, "has": true, "have": true, "am": true, "was": true,
	"were": true,
}

// Normalize cleans a raw question for embedding. Empty input yields empty
// output; no error paths.
func (n *Normalizer) Normalize(text, platform string) string {
	if text == "" {
		return ""
	}

	result := strings.TrimSpace(text)

	// Remove platform-specific artifacts
	if patterns, ok := platformArtifacts[platform]; ok {
		for _, p := range patterns {
			result = p.ReplaceAllString(result, "")
		}
	}

	// Clean markdown, keeping the inner text
	for _, p := range markdownPatterns {
		result = p.ReplaceAllString(result, "$1")
	}

	// Expand abbreviations
	for _, a := range abbreviations {
		result = a.pattern.ReplaceAllString(result, a.expansion)
	}

	// Normalize whitespace
	result = strings.Join(strings.Fields(result), " ")

	// Collapse excessive punctuation
	result = repeatedQuestion.ReplaceAllString(result, "?")
	result = repeatedExclamation.ReplaceAllString(result, "!")
	result = repeatedDots.ReplaceAllString(result, "...")

	// Ensure questions end with a question mark
	if isQuestionStructure(result) && !strings.HasSuffix(result, "?") {
		result = strings.TrimRight(result, ".!") + "?"
	}

	return strings.TrimSpace(result)
}

// ExtractKeyEntities returns the known AI entities mentioned in text,
// matched case-insensitively as substrings, in canonical casing
func (n *Normalizer) ExtractKeyEntities(text string) []string {
	textLower := strings.ToLower(text)

	var entities []string
	for _, entity := range knownEntities {
		if strings.Contains(textLower, strings.ToLower(entity)) {
			entities = append(entities, entity)
		}
	}
	return entities
}

// isQuestionStructure reports whether text starts with a question word or
// already contains a question mark
func isQuestionStructure(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	return questionStarters[fields[0]] || strings.Contains(text, "?")
}
