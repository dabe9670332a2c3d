package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbase-go/internal/models"
)

func section(path, content string, tokens int) models.FileSectionMatch {
	return models.FileSectionMatch{FilePath: path, Content: content, TokenCount: tokens}
}

func TestRenderSectionsStopsAtCutoff(t *testing.T) {
	sections := []models.FileSectionMatch{
		section("docs/a.md", "first", 600),
		section("docs/b.md", "second", 600),
		section("docs/c.md", "third", 600),
	}

	// 600 < 1000 so a is included; 1200 >= 1000 so c never makes it.
	text, refs := RenderSections(sections, 1000)

	assert.Contains(t, text, "Section id: docs/a.md")
	assert.Contains(t, text, "Section id: docs/b.md")
	assert.NotContains(t, text, "docs/c.md")

	require.Len(t, refs, 2)
	assert.Equal(t, "docs/a.md", refs[0].Path)
	assert.Equal(t, "docs/b.md", refs[1].Path)
}

func TestRenderSectionsReferenceForEveryIncludedSection(t *testing.T) {
	sections := []models.FileSectionMatch{
		section("a.md", "x", 10),
		section("b.md", "y", 10),
		section("c.md", "z", 10),
	}

	text, refs := RenderSections(sections, 1500)

	require.Len(t, refs, 3)
	for _, ref := range refs {
		assert.Contains(t, text, "Section id: "+ref.Path)
	}
}

func TestRenderSectionsFlattensNewlines(t *testing.T) {
	sections := []models.FileSectionMatch{
		section("a.md", "line one\nline two\nline three", 10),
	}

	text, _ := RenderSections(sections, 1500)

	assert.Contains(t, text, "line one line two line three")
	assert.True(t, strings.HasSuffix(text, "\n---\n"))
}

func TestRenderSectionsEmptyInput(t *testing.T) {
	text, refs := RenderSections(nil, 1500)
	assert.Empty(t, text)
	assert.Empty(t, refs)
}

func TestBuildReferenceLabelFromTitle(t *testing.T) {
	m := section("docs/getting-started.md", "x", 1)
	m.FileMeta = map[string]interface{}{"title": "Getting Started"}

	ref := BuildReference(m)
	assert.Equal(t, "Getting Started", ref.Label)
}

func TestBuildReferenceLabelFallsBackToBasename(t *testing.T) {
	ref := BuildReference(section("docs/guide/install.md", "x", 1))
	assert.Equal(t, "install.md", ref.Label)
}

func TestBuildReferenceGitHubHref(t *testing.T) {
	m := section("docs/install.md", "x", 1)
	m.SourceType = "github"
	m.SourceData = map[string]interface{}{"url": "https://github.com/acme/docs/"}

	ref := BuildReference(m)
	assert.Equal(t, "https://github.com/acme/docs/blob/main/docs/install.md", ref.Href)
}

func TestBuildReferenceWebsiteHref(t *testing.T) {
	m := section("https://acme.dev/docs/install", "x", 1)
	m.SourceType = "website"

	ref := BuildReference(m)
	assert.Equal(t, "https://acme.dev/docs/install", ref.Href)
}

func TestBuildChatMessagesInjectsContext(t *testing.T) {
	msgs := BuildChatMessages("You are helpful.", "Section id: a.md\n\nbody\n---\n", false)

	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are helpful.", msgs[0].Content)
	assert.Equal(t, models.RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Section id: a.md")
}

func TestBuildChatMessagesDoNotInjectContext(t *testing.T) {
	msgs := BuildChatMessages("You are helpful.", "some context", true)
	require.Len(t, msgs, 1)
}

func TestBuildCompletionPromptSubstitutesPlaceholders(t *testing.T) {
	template := "Use this context:\n{{CONTEXT}}\nIf unsure say {{I_DONT_KNOW}}.\nQuestion: {{PROMPT}}"

	out := BuildCompletionPrompt(template, "CTX", "what is x?", "I do not know.", false, false)

	assert.Contains(t, out, "Use this context:\nCTX\n")
	assert.Contains(t, out, "say I do not know.")
	assert.Contains(t, out, "Question: what is x?")
	// Placeholders were present, so nothing gets prepended or appended.
	assert.False(t, strings.HasPrefix(out, "Context sections:"))
	assert.False(t, strings.HasSuffix(out, "\n\nPrompt: what is x?"))
}

func TestBuildCompletionPromptPrependsContextWhenNoPlaceholder(t *testing.T) {
	out := BuildCompletionPrompt("Answer: {{PROMPT}}", "CTX", "what is x?", "idk", false, false)

	assert.True(t, strings.HasPrefix(out, "Context sections:\n---\nCTX\n---\n\n"))
	assert.Contains(t, out, "Answer: what is x?")
}

func TestBuildCompletionPromptAppendsPromptWhenNoPlaceholder(t *testing.T) {
	out := BuildCompletionPrompt("Be terse. Context: {{CONTEXT}}", "CTX", "what is x?", "idk", false, false)

	assert.True(t, strings.HasSuffix(out, "\n\nPrompt: what is x?"))
	assert.False(t, strings.HasPrefix(out, "Context sections:"))
}

func TestBuildCompletionPromptHonorsDoNotInjectFlags(t *testing.T) {
	out := BuildCompletionPrompt("Plain template.", "CTX", "what is x?", "idk", true, true)

	assert.Equal(t, "Plain template.", out)
}

func TestBuildCompletionPromptLiteralPromptTextIsNotReinterpreted(t *testing.T) {
	// The idk tag is replaced before user text enters the string, so a prompt
	// containing placeholder-looking text stays literal.
	out := BuildCompletionPrompt("Q: {{PROMPT}}", "CTX", "tell me about {{I_DONT_KNOW}}", "idk", false, true)

	assert.Contains(t, out, "tell me about {{I_DONT_KNOW}}")
}

func TestHasTemplatePlaceholders(t *testing.T) {
	assert.True(t, HasTemplatePlaceholders("x {{CONTEXT}} y"))
	assert.True(t, HasTemplatePlaceholders("{{PROMPT}}"))
	assert.True(t, HasTemplatePlaceholders("{{I_DONT_KNOW}}"))
	assert.False(t, HasTemplatePlaceholders("no tags here"))
}
