package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

func TestRegistryLoadAndRender(t *testing.T) {
	base := t.TempDir()
	agentDir := filepath.Join(base, "agents")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))

	tplPath := filepath.Join(agentDir, "analyst.tmpl")
	require.NoError(t, os.WriteFile(tplPath, []byte("Hello {{.Name}} at {{price .Price}}"), 0o644))

	reg, err := NewRegistry(base)
	require.NoError(t, err)

	tmpl, err := reg.GetTemplate("agents/analyst")
	require.NoError(t, err)

	rendered, err := tmpl.Render(map[string]any{"Name": "Alice", "Price": 1234.5})
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice at 1,234.5", rendered)

	// parsed templates are not reloaded from disk
	require.NoError(t, os.WriteFile(tplPath, []byte("Hi {{.Name}}"), 0o644))
	rendered, err = tmpl.Render(map[string]any{"Name": "Bob", "Price": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob at 1", rendered)
}

func TestRegistryLazyLoad(t *testing.T) {
	base := t.TempDir()
	reg, err := NewRegistry(base)
	require.NoError(t, err)

	path := filepath.Join(base, "notes", "filing.tmpl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("Filing {{.Symbol}}"), 0o644))

	rendered, err := reg.Render("notes/filing", map[string]string{"Symbol": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "Filing AAPL", rendered)

	_, err = reg.Render("notes/missing", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFinanceAgentTemplate(t *testing.T) {
	data := map[string]any{
		"UserID":   "user-42",
		"Now":      time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		"Markdown": true,
		"Memories": []string{"Prefers dividend stocks"},
	}

	out, err := Get().Render("agents/finance_agent", data)
	require.NoError(t, err)

	for _, want := range []string{
		"You are FinVisor",
		"user_id: user-42",
		"2025-03-14 09:30 UTC",
		"Use markdown",
		"Prefers dividend stocks",
		"search_filings",
	} {
		assert.Contains(t, out, want)
	}
	// instructions must not contain state placeholders
	assert.False(t, strings.ContainsAny(out, "{}"))
}

func TestFilingsAnalystTemplate(t *testing.T) {
	out, err := Get().Render("agents/filings_analyst", map[string]any{
		"UserID":   "u1",
		"Now":      time.Now(),
		"Markdown": false,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "search_knowledge")
	assert.NotContains(t, out, "markdown")
	assert.False(t, strings.ContainsAny(out, "{}"))
}

func TestEmbeddedTemplatesListed(t *testing.T) {
	ids := Get().List()
	assert.Contains(t, ids, "agents/finance_agent")
	assert.Contains(t, ids, "agents/filings_analyst")
	assert.Contains(t, ids, "tools/technical_indicators")
}

func TestOverridesShadowEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "finance_agent.tmpl"), []byte("custom for {{.UserID}}"), 0o644))

	reg, err := NewWithOverrides(dir)
	require.NoError(t, err)

	out, err := reg.Render("agents/finance_agent", map[string]any{"UserID": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "custom for u1", out)

	_, err = reg.GetTemplate("agents/filings_analyst")
	assert.NoError(t, err)

	_, err = NewWithOverrides(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
