package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadData(t *testing.T) {
	noClip := func() (string, error) { return "", errors.New("no clipboard") }

	got, err := readData("a || b", nil, noClip)
	require.NoError(t, err)
	assert.Equal(t, "a || b", got)

	got, err = readData("-", strings.NewReader("x || y\n"), noClip)
	require.NoError(t, err)
	assert.Equal(t, "x || y", got)

	_, err = readData("", nil, noClip)
	assert.Error(t, err)

	_, err = readData("", nil, func() (string, error) { return "  ", nil })
	assert.Error(t, err)

	got, err = readData("", nil, func() (string, error) { return "c || d", nil })
	require.NoError(t, err)
	assert.Equal(t, "c || d", got)
}

func TestSplitSelectors(t *testing.T) {
	assert.Nil(t, splitSelectors(""))
	assert.Equal(t, []string{"#a", "#b"}, splitSelectors(" #a, ,#b "))
}

func TestDispatch_Unknown(t *testing.T) {
	assert.Error(t, dispatch(context.Background(), "pour-everything", nil))
}

// setup writes a config using the static driver and a temp storage dir,
// and a form page, and captures stdout.
func setup(t *testing.T) (cfgPath, pageURL string, out *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLIPPYPOUR_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfgPath = filepath.Join(home, "clippypour.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
browser:
  driver: static
llm:
  enabled: false
fill:
  pacing: 0s
  retry_delay: 0s
storage:
  dir: `+filepath.Join(home, "data")+`
`), 0o600))

	page := filepath.Join(home, "signup.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><head><title>Sign up</title></head><body>
<form id="signup">
  <label for="user">Username</label><input id="user" type="text">
  <label for="mail">Email</label><input id="mail" type="email">
</form></body></html>`), 0o600))

	out = &bytes.Buffer{}
	prev := stdout
	stdout = out
	t.Cleanup(func() { stdout = prev })
	return cfgPath, "file://" + page, out
}

func TestAnalyzeCommand(t *testing.T) {
	cfgPath, pageURL, out := setup(t)

	require.NoError(t, dispatch(context.Background(), "analyze", []string{"-config", cfgPath, "-json", pageURL}))
	assert.Contains(t, out.String(), `"#signup"`)
}

func TestFillCommand(t *testing.T) {
	cfgPath, pageURL, out := setup(t)

	err := dispatch(context.Background(), "fill", []string{
		"-config", cfgPath, "-url", pageURL, "-data", "jane || jane@example.com", "-json",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"Done"`)

	out.Reset()
	require.NoError(t, dispatch(context.Background(), "templates", []string{"-config", cfgPath}))
	assert.Contains(t, out.String(), "sign-up")

	out.Reset()
	require.NoError(t, dispatch(context.Background(), "history", []string{"-config", cfgPath}))
	assert.Contains(t, out.String(), "Done")

	out.Reset()
	require.NoError(t, dispatch(context.Background(), "templates", []string{"-config", cfgPath, "delete", "sign-up"}))
	assert.Contains(t, out.String(), `deleted template "sign-up"`)
}

func TestFillCommand_NotDone(t *testing.T) {
	cfgPath, pageURL, _ := setup(t)

	err := dispatch(context.Background(), "fill", []string{
		"-config", cfgPath, "-url", pageURL, "-data", "jane", "-selectors", "#user,#missing", "-mode", "strict",
	})
	assert.ErrorIs(t, err, errSessionNotDone)
}

func TestFillCommand_Errors(t *testing.T) {
	cfgPath, pageURL, _ := setup(t)

	assert.Error(t, dispatch(context.Background(), "fill", []string{"-config", cfgPath, "-data", "x"}), "url is required")
	assert.Error(t, dispatch(context.Background(), "fill", []string{"-config", cfgPath, "-url", pageURL, "-data", "x", "-driver", "lynx"}))
}

func TestProfilesCommand(t *testing.T) {
	cfgPath, pageURL, out := setup(t)
	ctx := context.Background()

	require.NoError(t, dispatch(ctx, "profiles", []string{"-config", cfgPath, "save", "Work", "jane || jane@example.com"}))
	assert.Contains(t, out.String(), `saved profile "work"`)

	out.Reset()
	require.NoError(t, dispatch(ctx, "profiles", []string{"-config", cfgPath}))
	assert.Contains(t, out.String(), "work")

	out.Reset()
	err := dispatch(ctx, "fill", []string{"-config", cfgPath, "-url", pageURL, "-profile", "work", "-submit"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `data from profile "work"`)
	assert.Contains(t, out.String(), "form submitted")

	out.Reset()
	require.NoError(t, dispatch(ctx, "profiles", []string{"-config", cfgPath, "delete", "work"}))
	assert.Contains(t, out.String(), `deleted profile "work"`)

	assert.Error(t, dispatch(ctx, "fill", []string{"-config", cfgPath, "-url", pageURL, "-profile", "work"}))
}

func TestProfilesCommand_SaveFromClipboard(t *testing.T) {
	cfgPath, _, out := setup(t)
	prev := readClipboard
	readClipboard = func() (string, error) { return "ada || ada@example.com", nil }
	t.Cleanup(func() { readClipboard = prev })

	require.NoError(t, dispatch(context.Background(), "profiles", []string{"-config", cfgPath, "save", "home"}))

	out.Reset()
	require.NoError(t, dispatch(context.Background(), "profiles", []string{"-config", cfgPath, "show", "home"}))
	assert.Contains(t, out.String(), "ada@example.com")

	assert.Error(t, dispatch(context.Background(), "profiles", []string{"-config", cfgPath, "rename"}))
}
