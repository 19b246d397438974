package session

import (
	"fmt"
	"strings"
)

// Sender identifies the author of a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ContentType is the top-level message variant tag used on the wire and in
// persisted chat history.
type ContentType string

const (
	ContentText         ContentType = "text"
	ContentQuestion     ContentType = "question"
	ContentSummaryCards ContentType = "summary_cards"
	ContentFinalPlan    ContentType = "final_plan"
)

// QuestionKind is the question subtype tag inside question content. The
// planning backend owns the vocabulary; rendering and answer validation
// switch over it exhaustively and refuse kinds they do not know.
type QuestionKind string

const (
	QuestionText           QuestionKind = "text"
	QuestionNumber         QuestionKind = "number"
	QuestionDate           QuestionKind = "date"
	QuestionSingleSelect   QuestionKind = "single_select"
	QuestionMultiSelect    QuestionKind = "multi_select"
	QuestionRangeSlider    QuestionKind = "range_slider"
	QuestionConfirm        QuestionKind = "confirm"
	QuestionMultipleChoice QuestionKind = "multiple_choice"
)

// Supported reports whether this client knows how to render and validate
// answers for the question kind.
func (k QuestionKind) Supported() bool {
	switch k {
	case QuestionText, QuestionNumber, QuestionDate, QuestionSingleSelect,
		QuestionMultiSelect, QuestionRangeSlider, QuestionConfirm, QuestionMultipleChoice:
		return true
	}
	return false
}

// Content is the sealed union of message payload variants. Exactly the
// types in this file implement it.
type Content interface {
	isContent()

	// Fields returns the content in its document/wire map form.
	Fields() map[string]any
}

// TextContent is a plain conversational turn.
type TextContent struct {
	Prompt string
}

func (TextContent) isContent() {}

func (c TextContent) Fields() map[string]any {
	return map[string]any{"prompt": c.Prompt}
}

// Option is one selectable answer of a select-style question.
type Option struct {
	Value string
	Label string
}

// Text returns the user-facing form of the option.
func (o Option) Text() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Value
}

// QuestionContent asks the user for a structured answer. Kind may be a
// subtype this client does not support; callers decide at render time.
type QuestionContent struct {
	ID      string
	Prompt  string
	Kind    QuestionKind
	Options []Option
}

func (QuestionContent) isContent() {}

func (c QuestionContent) Fields() map[string]any {
	m := map[string]any{
		"id":     c.ID,
		"prompt": c.Prompt,
		"type":   string(c.Kind),
	}
	if len(c.Options) > 0 {
		opts := make([]any, 0, len(c.Options))
		for _, o := range c.Options {
			opts = append(opts, map[string]any{"label": o.Label, "value": o.Value})
		}
		m["options"] = opts
	}
	return m
}

// SummaryCard is one option card inside a summary_cards payload: a clinic,
// a flight/hotel bundle, or a local-logistics package.
type SummaryCard struct {
	ID               string
	Name             string
	Location         string
	CostUSD          string
	BriefDescription string
	ImageURL         string
	Details          map[string]any
}

// SummaryCardsContent carries a set of option cards for one planning
// aspect, plus any sibling payload fields (visa information and the like).
type SummaryCardsContent struct {
	PlanningType string
	Cards        []SummaryCard
	Extras       map[string]any
}

func (SummaryCardsContent) isContent() {}

func (c SummaryCardsContent) Fields() map[string]any {
	payload := map[string]any{}
	for k, v := range c.Extras {
		payload[k] = v
	}
	cards := make([]any, 0, len(c.Cards))
	for _, card := range c.Cards {
		cards = append(cards, cardFields(card))
	}
	payload["output"] = cards
	return map[string]any{
		"planning_type": c.PlanningType,
		"payload":       payload,
	}
}

func cardFields(card SummaryCard) map[string]any {
	m := map[string]any{
		"id":       card.ID,
		"name":     card.Name,
		"location": card.Location,
	}
	if card.CostUSD != "" {
		m["cost_usd"] = card.CostUSD
	}
	if card.BriefDescription != "" {
		m["brief_description"] = card.BriefDescription
	}
	if card.ImageURL != "" {
		m["image_url"] = card.ImageURL
	}
	if len(card.Details) > 0 {
		m["details_data"] = card.Details
	}
	return m
}

// FinalPlanContent is the finalized itinerary report.
type FinalPlanContent struct {
	Report map[string]any
}

func (FinalPlanContent) isContent() {}

func (c FinalPlanContent) Fields() map[string]any {
	if c.Report == nil {
		return map[string]any{}
	}
	return c.Report
}

// RawContent preserves a payload whose message_type this client does not
// recognize, so forward-compatible rendering can still show something.
type RawContent struct {
	Type string
	Raw  map[string]any
}

func (RawContent) isContent() {}

func (c RawContent) Fields() map[string]any {
	if c.Raw == nil {
		return map[string]any{}
	}
	return c.Raw
}

// Message is one chat turn of a planning session.
type Message struct {
	ID        string
	Sender    Sender
	Type      ContentType
	Content   Content
	Timestamp Stamp
}

// Text returns a plain-text rendering of the message payload, used for the
// wire history sent to the planning backend and for list previews.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case TextContent:
		return c.Prompt
	case QuestionContent:
		return c.Prompt
	case SummaryCardsContent:
		return fmt.Sprintf("[%d %s option(s)]", len(c.Cards), c.PlanningType)
	case FinalPlanContent:
		return "[final plan]"
	case RawContent:
		return fmt.Sprintf("[unsupported message type %q]", c.Type)
	default:
		return ""
	}
}

// ParseContent converts a wire/document content map into its typed variant.
// Unknown message types come back as RawContent together with
// ErrUnsupportedContent so callers can keep the payload and still flag it.
func ParseContent(messageType string, content map[string]any) (Content, error) {
	switch ContentType(messageType) {
	case ContentText:
		return TextContent{Prompt: stringField(content, "prompt")}, nil

	case ContentQuestion:
		q := QuestionContent{
			ID:     stringField(content, "id"),
			Prompt: stringField(content, "prompt"),
			Kind:   QuestionKind(stringField(content, "type")),
		}
		if opts, ok := content["options"].([]any); ok {
			q.Options = parseOptions(opts)
		}
		return q, nil

	case ContentSummaryCards:
		c := SummaryCardsContent{PlanningType: stringField(content, "planning_type")}
		payload, _ := content["payload"].(map[string]any)
		for k, v := range payload {
			if k == "output" {
				continue
			}
			if c.Extras == nil {
				c.Extras = map[string]any{}
			}
			c.Extras[k] = v
		}
		if out, ok := payload["output"].([]any); ok {
			for _, item := range out {
				if card, ok := item.(map[string]any); ok {
					c.Cards = append(c.Cards, parseCard(card))
				}
			}
		}
		return c, nil

	case ContentFinalPlan:
		return FinalPlanContent{Report: content}, nil

	default:
		return RawContent{Type: messageType, Raw: content},
			fmt.Errorf("%w: %q", ErrUnsupportedContent, messageType)
	}
}

func parseOptions(items []any) []Option {
	opts := make([]Option, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			opts = append(opts, Option{Value: v})
		case map[string]any:
			opts = append(opts, Option{
				Value: stringField(v, "value"),
				Label: stringField(v, "label"),
			})
		}
	}
	return opts
}

func parseCard(m map[string]any) SummaryCard {
	card := SummaryCard{
		ID:               stringField(m, "id"),
		Name:             stringField(m, "name"),
		Location:         stringField(m, "location"),
		CostUSD:          stringField(m, "cost_usd"),
		BriefDescription: stringField(m, "brief_description"),
		ImageURL:         stringField(m, "image_url"),
	}
	if details, ok := m["details_data"].(map[string]any); ok {
		card.Details = details
	}
	return card
}

// stringField reads m[key] as a string, stringifying scalar values so a
// numeric cost or id does not get lost.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
