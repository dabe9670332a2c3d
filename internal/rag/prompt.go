// internal/rag/prompt.go
package rag

import (
	"path"
	"strings"

	"github.com/askbase-go/internal/models"
)

// ChatContextTokenCutoff is the token allowance reserved for retrieved
// sections in chat mode. Legacy completions mode uses a configured cutoff.
const ChatContextTokenCutoff = 1500

// Legacy template placeholders.
const (
	PlaceholderContext   = "{{CONTEXT}}"
	PlaceholderPrompt    = "{{PROMPT}}"
	PlaceholderIDontKnow = "{{I_DONT_KNOW}}"
)

// HasTemplatePlaceholders reports whether a configured prompt uses the legacy
// tag-substitution format.
func HasTemplatePlaceholders(template string) bool {
	return strings.Contains(template, PlaceholderContext) ||
		strings.Contains(template, PlaceholderPrompt) ||
		strings.Contains(template, PlaceholderIDontKnow)
}

func flatten(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}

// RenderSections concatenates retrieved sections in similarity order until
// the accumulated token count reaches the cutoff, and builds a reference for
// every section included. References reflect the context considered here,
// not what later survives history capping.
func RenderSections(sections []models.FileSectionMatch, cutoffTokens int) (string, []models.FileSectionReference) {
	var b strings.Builder
	var refs []models.FileSectionReference
	tokens := 0

	for _, s := range sections {
		if tokens >= cutoffTokens {
			break
		}
		b.WriteString("Section id: ")
		b.WriteString(s.FilePath)
		b.WriteString("\n\n")
		b.WriteString(flatten(s.Content))
		b.WriteString("\n---\n")
		refs = append(refs, BuildReference(s))
		tokens += s.TokenCount
	}
	return b.String(), refs
}

// BuildReference resolves a citation from a match's denormalized file and
// source metadata.
func BuildReference(m models.FileSectionMatch) models.FileSectionReference {
	ref := models.FileSectionReference{Path: m.FilePath}

	if title, ok := m.FileMeta["title"].(string); ok && title != "" {
		ref.Label = title
	} else {
		ref.Label = path.Base(m.FilePath)
	}

	switch m.SourceType {
	case "github":
		if repoURL, ok := m.SourceData["url"].(string); ok && repoURL != "" {
			ref.Href = strings.TrimSuffix(repoURL, "/") + "/blob/main/" + strings.TrimPrefix(m.FilePath, "/")
		}
	case "website":
		ref.Href = m.FilePath
	default:
		if url, ok := m.SourceData["url"].(string); ok {
			ref.Href = url
		}
	}
	return ref
}

// BuildChatMessages builds the init messages for chat mode: the system
// prompt, optionally followed by a second system message embedding the
// concatenated context. The capped conversation history is appended by the
// handler after budgeting.
func BuildChatMessages(systemPrompt, contextText string, doNotInjectContext bool) []models.ChatMessage {
	msgs := []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt},
	}
	if !doNotInjectContext && contextText != "" {
		msgs = append(msgs, models.ChatMessage{
			Role:    models.RoleSystem,
			Content: "Below is a list of context sections relevant to the conversation:\n\n" + contextText,
		})
	}
	return msgs
}

// BuildCompletionPrompt builds the single prompt string for legacy template
// mode. Placeholders present in the template are substituted in place; when a
// placeholder is absent, the corresponding content is injected by default
// (context prepended, prompt appended) unless the matching do-not-inject flag
// is set.
func BuildCompletionPrompt(template, contextText, prompt, idkMessage string, doNotInjectContext, doNotInjectPrompt bool) string {
	out := template
	out = strings.ReplaceAll(out, PlaceholderIDontKnow, idkMessage)

	hasPromptPlaceholder := strings.Contains(out, PlaceholderPrompt)
	hasContextPlaceholder := strings.Contains(out, PlaceholderContext)

	out = strings.ReplaceAll(out, PlaceholderPrompt, prompt)
	out = strings.ReplaceAll(out, PlaceholderContext, contextText)

	if !hasContextPlaceholder && !doNotInjectContext {
		out = "Context sections:\n---\n" + contextText + "\n---\n\n" + out
	}
	if !hasPromptPlaceholder && !doNotInjectPrompt {
		out = out + "\n\nPrompt: " + prompt
	}
	return out
}
