package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern_SQLInjection(t *testing.T) {
	files := []File{{Path: "app.py", Content: `query = f"SELECT * FROM users WHERE id = {user_id}"`}}
	findings := Pattern(files)
	require.Len(t, findings, 1)
	assert.Equal(t, "sql_injection", findings[0].Category)
	assert.Equal(t, 1, findings[0].Location.Line)
}

func TestPattern_XSSInnerHTML(t *testing.T) {
	files := []File{{Path: "widget.js", Content: "el.innerHTML = userInput;"}}
	findings := Pattern(files)
	require.Len(t, findings, 1)
	assert.Equal(t, "xss", findings[0].Category)
}

func TestPattern_OneFindingPerFilePerRule(t *testing.T) {
	files := []File{{Path: "widget.js", Content: "el.innerHTML = a;\nel2.innerHTML = b;\nel3.innerHTML = c;"}}
	findings := Pattern(files)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].Location.Line)
}

func TestPattern_NonCodeFileSkipped(t *testing.T) {
	files := []File{{Path: "notes.txt", Content: "eval(x)"}}
	findings := Pattern(files)
	assert.Empty(t, findings)
}

func TestPattern_CommandInjection(t *testing.T) {
	files := []File{{Path: "run.py", Content: "subprocess.run(cmd, shell=True)"}}
	findings := Pattern(files)
	require.Len(t, findings, 1)
	assert.Equal(t, "command_injection", findings[0].Category)
}

func TestPattern_WildcardCORS(t *testing.T) {
	files := []File{{Path: "server.js", Content: `cors({ origin: "*" })`}}
	findings := Pattern(files)
	require.Len(t, findings, 1)
	assert.Equal(t, "wildcard_cors", findings[0].Category)
}

func TestPattern_NoMatchIsClean(t *testing.T) {
	files := []File{{Path: "main.go", Content: "func main() {}\n"}}
	findings := Pattern(files)
	assert.Empty(t, findings)
}
