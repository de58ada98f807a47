package prompt

import (
	"strings"
	"unicode/utf8"
)

// Fields are the sections the model is asked to extract, in prompt order
var Fields = []string{
	"Name",
	"Contact Information",
	"Summary",
	"Skills",
	"Experience",
	"Education",
}

const (
	preamble = " Extract the following resume text into a structured JSON format with fields: \n        "
	textTag  = ". Text: "
	trailer  = "\n        "
)

// Builder formats extraction prompts. MaxTextLen caps the embedded resume
// text in bytes; zero means no limit.
type Builder struct {
	MaxTextLen int
}

// Build returns the prompt for text with no length limit
func Build(text string) string {
	return Builder{}.Build(text)
}

// Build embeds text verbatim after the fixed instruction
func (b Builder) Build(text string) string {
	text = b.truncate(text)

	var sb strings.Builder
	sb.Grow(len(preamble) + len(text) + 96)
	sb.WriteString(preamble)
	sb.WriteString(strings.Join(Fields, ", "))
	sb.WriteString(textTag)
	sb.WriteString(text)
	sb.WriteString(trailer)
	return sb.String()
}

// truncate cuts text at MaxTextLen bytes without splitting a UTF-8 sequence
func (b Builder) truncate(text string) string {
	if b.MaxTextLen <= 0 || len(text) <= b.MaxTextLen {
		return text
	}
	cut := b.MaxTextLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
