package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/session"
)

// renderMessage writes one chat turn to w. Rendering switches exhaustively
// over the content union; unknown variants and question kinds are shown as
// explicit unsupported notes rather than hidden.
func renderMessage(w io.Writer, m session.Message) {
	prefix := "you"
	if m.Sender == session.SenderAgent {
		prefix = "agent"
	}

	switch c := m.Content.(type) {
	case session.TextContent:
		fmt.Fprintf(w, "[%s] %s\n", prefix, c.Prompt)

	case session.QuestionContent:
		fmt.Fprintf(w, "[%s] %s\n", prefix, c.Prompt)
		if !c.Kind.Supported() {
			fmt.Fprintf(w, "  (question type %q is not supported here; answer in free text)\n", string(c.Kind))
		} else if hint := kindHint(c.Kind); hint != "" {
			fmt.Fprintf(w, "  (%s)\n", hint)
		}
		for i, opt := range c.Options {
			fmt.Fprintf(w, "  %d. %s\n", i+1, opt.Text())
		}

	case session.SummaryCardsContent:
		fmt.Fprintf(w, "[%s] %s options:\n", prefix, strings.ReplaceAll(c.PlanningType, "_", " "))
		for i, card := range c.Cards {
			renderCard(w, i+1, card)
		}
		renderExtras(w, c.Extras)

	case session.FinalPlanContent:
		fmt.Fprintf(w, "[%s] Your final plan:\n", prefix)
		renderFields(w, "  ", c.Report)

	case session.RawContent:
		fmt.Fprintf(w, "[%s] (unsupported message type %q)\n", prefix, c.Type)
		renderFields(w, "  ", c.Raw)

	default:
		fmt.Fprintf(w, "[%s] %s\n", prefix, m.Text())
	}
}

func kindHint(k session.QuestionKind) string {
	switch k {
	case session.QuestionText:
		return ""
	case session.QuestionNumber:
		return "enter a number"
	case session.QuestionDate:
		return "enter a date, e.g. 2025-09-01"
	case session.QuestionSingleSelect, session.QuestionMultipleChoice:
		return "pick one option"
	case session.QuestionMultiSelect:
		return "pick one or more options, comma-separated"
	case session.QuestionRangeSlider:
		return "enter a value in the offered range"
	case session.QuestionConfirm:
		return "answer yes or no"
	default:
		return ""
	}
}

func renderCard(w io.Writer, n int, card session.SummaryCard) {
	fmt.Fprintf(w, "  %d. %s", n, card.Name)
	if card.Location != "" {
		fmt.Fprintf(w, " — %s", card.Location)
	}
	if card.CostUSD != "" {
		fmt.Fprintf(w, " (USD %s)", card.CostUSD)
	}
	fmt.Fprintln(w)
	if card.BriefDescription != "" {
		fmt.Fprintf(w, "     %s\n", card.BriefDescription)
	}
}

func renderExtras(w io.Writer, extras map[string]any) {
	if v, ok := extras["visa_information"]; ok {
		fmt.Fprintf(w, "  Visa: %s\n", renderValue(v))
	}
}

// renderFields prints a map's fields in stable order.
func renderFields(w io.Writer, indent string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s: %s\n", indent, strings.ReplaceAll(k, "_", " "), renderValue(m[k]))
	}
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
