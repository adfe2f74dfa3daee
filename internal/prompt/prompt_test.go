package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasAllPrompts(t *testing.T) {
	s := Default()
	assert.Equal(t, []string{AnswerGeneration, ChunkSummary, DocumentSummary, Triage}, s.Names())
}

func TestRender_AnswerGeneration(t *testing.T) {
	s := Default()
	out, err := s.Render(AnswerGeneration, AnswerData{
		Query:   "  What is the world population?  ",
		Context: "[1] The world population reached 8.2 billion.",
		Citations: []Citation{
			{Index: 1, ChunkID: "c1", DocumentID: "wpp.pdf", Position: 4},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, out.System, "Use only the information found in the context.")
	assert.Contains(t, out.User, "User Question:\nWhat is the world population?\n")
	assert.Contains(t, out.User, "Context:\n[1] The world population reached 8.2 billion.")
	assert.Contains(t, out.User, "[1] wpp.pdf (chunk 4)")
	assert.Contains(t, out.User, "Answer:")
}

func TestRender_Triage(t *testing.T) {
	out, err := Default().Render(Triage, TriageData{Query: "Who won the cup?", Scope: "demography"})
	require.NoError(t, err)
	assert.Contains(t, out.System, "related to demography.")
	assert.Contains(t, out.User, `"Who won the cup?"`)
}

func TestRender_Errors(t *testing.T) {
	s := Default()

	_, err := s.Render("missing", nil)
	assert.ErrorContains(t, err, "unknown prompt")

	// missing fields fail instead of rendering "<no value>"
	_, err = s.Render(Triage, map[string]string{"Query": "q"})
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "chunk_summary:\n  system: short\n  user: \"Sum: {{ .Text | upper }}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	out, err := s.Render(ChunkSummary, SummaryData{Text: "fertility"})
	require.NoError(t, err)
	assert.Equal(t, "short", out.System)
	assert.Equal(t, "Sum: FERTILITY", out.User)

	// untouched prompts keep their defaults
	assert.Len(t, s.Names(), 4)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("triage:\n  user: \"{{ .Query \"\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse prompt")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("triage:\n  system: x\n"), 0o644))
	_, err = Load(empty)
	assert.ErrorContains(t, err, "user template is empty")
}
