// Package format renders a consensus.Result in the presentations the
// HTTP façade offers callers: raw JSON, a Markdown report, or a
// short-post summary bounded to 280 runes. Markdown and Twitter are pure
// functions of the result and cannot fail; the JSON presentation is the
// result itself, encoded by the caller.
package format

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/compass/internal/consensus"
)

// Mode selects a presentation. The zero value is ModeJSON.
type Mode string

const (
	ModeJSON     Mode = "json"
	ModeMarkdown Mode = "markdown"
	ModeTwitter  Mode = "twitter"
)

// ParseMode maps a format query/body value to a Mode, defaulting to
// ModeJSON for anything unrecognized rather than erroring.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMarkdown:
		return ModeMarkdown
	case ModeTwitter:
		return ModeTwitter
	default:
		return ModeJSON
	}
}

var verdictEmoji = map[consensus.Verdict]string{
	consensus.VerdictUnanimous:   "✅",
	consensus.VerdictSplit:       "⚖️",
	consensus.VerdictNoConsensus: "❓",
}

// Markdown renders a report: verdict heading, agreement score, the
// representative answer, a per-model breakdown table, and a dissenter
// callout when the verdict is split.
func Markdown(r consensus.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s %s\n\n", verdictEmoji[r.Verdict], strings.ToUpper(string(r.Verdict)))
	fmt.Fprintf(&b, "**Agreement score:** %.2f  \n**Confidence:** %s\n\n", r.Score, r.Confidence)

	if r.Representative != nil {
		fmt.Fprintf(&b, "### Answer\n\n%s\n\n", r.Representative.Answer)
	}

	if r.Dissenter != nil {
		fmt.Fprintf(&b, "> **Dissenting model (%s):** %s\n\n", r.Dissenter.Model, r.Dissenter.Answer)
	}

	if r.QualityScore != nil {
		fmt.Fprintf(&b, "**Reflection quality score:** %d/100\n\n", *r.QualityScore)
	}

	b.WriteString("| Model | Success | Latency (ms) | Answer |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, resp := range r.Responses {
		answer := resp.Answer
		if !resp.Success {
			answer = resp.Error
		}
		fmt.Fprintf(&b, "| %s | %v | %d | %s |\n", resp.Model, resp.Success, resp.LatencyMS, oneLine(answer))
	}

	return b.String()
}

// maxTwitterRunes is the hard cap for Twitter-shaped output.
const maxTwitterRunes = 280

// Twitter renders a ≤280-rune summary: verdict emoji, a truncated
// one-line representative answer, and the agreement score.
func Twitter(r consensus.Result) string {
	answer := "no answer reached"
	if r.Representative != nil {
		answer = oneLine(r.Representative.Answer)
	}

	suffix := fmt.Sprintf(" (score %.2f)", r.Score)
	emoji := verdictEmoji[r.Verdict]
	prefix := emoji + " "

	budget := maxTwitterRunes - runeLen(prefix) - runeLen(suffix)
	if budget < 0 {
		budget = 0
	}
	answer = truncateRunes(answer, budget)

	out := prefix + answer + suffix
	return truncateRunes(out, maxTwitterRunes)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncateRunes shortens s to at most n runes, appending an ellipsis
// when truncation actually occurs.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
