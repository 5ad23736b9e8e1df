package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/mapping"
	"github.com/entrhq/clippypour/pkg/page"
)

var (
	_ page.Driver    = (*Driver)(nil)
	_ page.Submitter = (*Driver)(nil)
)

const contactPage = `<!DOCTYPE html>
<html><head><title>Contact us</title></head>
<body>
  <form id="contact">
    <label for="name">Full name</label>
    <input id="name" name="name" type="text">
    <input name="email" type="email" aria-label="Email address" required>
    <textarea placeholder="Your message"></textarea>
    <select name="country">
      <option value="">Choose...</option>
      <option value="us">United States</option>
      <option value="ca">Canada</option>
    </select>
    <label><input type="checkbox" name="subscribe"> Subscribe</label>
    <input type="hidden" name="csrf" value="token">
    <input type="text" name="nickname" style="display: none">
    <input type="text" name="locked" disabled>
    <button type="submit">Send</button>
  </form>
  <form class="search">
    <input type="search" name="q">
  </form>
</body></html>`

const formlessPage = `<html><body>
  <div class="wrapper">
    <section>
      <input type="text" placeholder="First">
      <input type="text" placeholder="Last">
    </section>
  </div>
  <input type="text" name="stray">
</body></html>`

func load(t *testing.T, d *Driver, src string) page.Handle {
	t.Helper()
	h, err := d.Load("https://example.com/contact", strings.NewReader(src))
	require.NoError(t, err)
	return h
}

func selectors(cs []page.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Selector
	}
	return out
}

func TestProbe_ContactPage(t *testing.T) {
	d := NewDriver()
	h := load(t, d, contactPage)
	assert.Equal(t, "Contact us", h.Title())

	cs, err := d.Probe(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"#name",
		`input[name="email"]`,
		"#contact > textarea:nth-of-type(1)",
		`select[name="country"]`,
		`input[name="subscribe"]`,
		`input[name="csrf"]`,
		`input[name="nickname"]`,
		`input[name="locked"]`,
		`input[name="q"]`,
	}, selectors(cs))

	assert.Equal(t, "Full name", cs[0].LabelText)
	assert.Equal(t, "#contact", cs[0].Container)
	assert.Equal(t, "Subscribe", cs[4].LabelText)
	assert.Equal(t, []string{"Choose...", "United States", "Canada"}, cs[3].Options)
	assert.False(t, cs[5].Visible, "type=hidden")
	assert.False(t, cs[6].Visible, "display:none")
	assert.True(t, cs[7].HasAttr("disabled"))
	assert.Equal(t, "html > body:nth-of-type(1) > form:nth-of-type(2)", cs[8].Container)
}

func TestProbe_FormlessFallsBackToDivs(t *testing.T) {
	d := NewDriver()
	h := load(t, d, formlessPage)

	cs, err := d.Probe(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, cs, 3)

	// The innermost qualifying container wins.
	assert.Equal(t, "html > body:nth-of-type(1) > div:nth-of-type(1) > section:nth-of-type(1)", cs[0].Container)
	assert.Equal(t, cs[0].Container, cs[1].Container)
	assert.Empty(t, cs[2].Container)
}

func TestProbe_SelectorsResolve(t *testing.T) {
	d := NewDriver()
	h := load(t, d, contactPage)
	cs, err := d.Probe(context.Background(), h)
	require.NoError(t, err)

	p, _ := d.lookup(h)
	for _, c := range cs {
		assert.Equal(t, 1, p.doc.Find(c.Selector).Length(), c.Selector)
	}
}

func TestProbe_UnknownHandle(t *testing.T) {
	d := NewDriver()
	h := load(t, d, contactPage)
	require.NoError(t, d.Close(h))

	_, err := d.Probe(context.Background(), h)
	var probeErr *page.ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.ErrorIs(t, err, page.ErrPageClosed)
	assert.Error(t, d.Close(h))
}

func TestAnalyze_StaticPage(t *testing.T) {
	d := NewDriver()
	h := load(t, d, contactPage)

	forms, err := form.NewAnalyzer(d).Analyze(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, forms, 2)

	contact := forms[0]
	assert.Equal(t, "#contact", contact.Selector)
	assert.Equal(t, form.CategoryContact, contact.Category)

	labels := make([]string, len(contact.Fields))
	for i, f := range contact.Fields {
		labels[i] = f.Label
	}
	assert.Equal(t, []string{"Full name", "Email address", "Your message", "country", "Subscribe", "nickname", "locked"}, labels)
	assert.Equal(t, form.KindEmail, contact.Fields[1].Kind)
	assert.True(t, contact.Fields[1].Required)
	assert.False(t, contact.Fields[5].Visible)
	assert.True(t, contact.Fields[6].Disabled)
}

func TestWrite_AndReadBack(t *testing.T) {
	ctx := context.Background()
	d := NewDriver()
	h := load(t, d, contactPage)

	require.NoError(t, d.Write(ctx, h, "#name", "John Doe"))
	require.NoError(t, d.Write(ctx, h, "#contact > textarea:nth-of-type(1)", "Hello there"))
	require.NoError(t, d.Write(ctx, h, `select[name="country"]`, "Canada"))
	require.NoError(t, d.Write(ctx, h, `input[name="subscribe"]`, "yes"))

	for selector, want := range map[string]string{
		"#name":                              "John Doe",
		"#contact > textarea:nth-of-type(1)": "Hello there",
		`select[name="country"]`:             "ca",
		`input[name="subscribe"]`:            "yes",
	} {
		rb, err := d.ReadBack(ctx, h, selector, want)
		require.NoError(t, err)
		assert.True(t, rb.Matches, "%s read back %q", selector, rb.Actual)
	}

	out, err := d.HTML(h)
	require.NoError(t, err)
	assert.Contains(t, out, `value="John Doe"`)
	assert.Contains(t, out, "Hello there")
	assert.Contains(t, out, `<option value="ca" selected="">Canada</option>`)

	rb, err := d.ReadBack(ctx, h, "#name", "Jane")
	require.NoError(t, err)
	assert.False(t, rb.Matches)
	assert.Equal(t, "John Doe", rb.Actual)
}

func TestWrite_Failures(t *testing.T) {
	ctx := context.Background()
	d := NewDriver()
	h := load(t, d, contactPage)

	tests := []struct {
		selector string
		value    string
		reason   page.WriteReason
	}{
		{"#missing", "x", page.ReasonSelectorNotFound},
		{"##invalid[", "x", page.ReasonSelectorNotFound},
		{`input[name="locked"]`, "x", page.ReasonNotInteractable},
		{`input[name="nickname"]`, "x", page.ReasonNotInteractable},
		{`input[name="csrf"]`, "x", page.ReasonNotInteractable},
		{`select[name="country"]`, "Atlantis", page.ReasonNotInteractable},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			err := d.Write(ctx, h, tt.selector, tt.value)
			var we *page.WriteError
			require.ErrorAs(t, err, &we)
			assert.Equal(t, tt.reason, we.Reason)
		})
	}
}

func TestWrite_RadioGroup(t *testing.T) {
	ctx := context.Background()
	d := NewDriver()
	h := load(t, d, `<form><input type="radio" id="a" name="plan" checked><input type="radio" id="b" name="plan"></form>`)

	require.NoError(t, d.Write(ctx, h, "#b", "yes"))

	rb, err := d.ReadBack(ctx, h, "#a", "yes")
	require.NoError(t, err)
	assert.False(t, rb.Matches, "selecting b clears a")

	rb, err = d.ReadBack(ctx, h, "#b", "yes")
	require.NoError(t, err)
	assert.True(t, rb.Matches)
}

func TestOpen_FileAndHTTP(t *testing.T) {
	ctx := context.Background()
	d := NewDriver()

	path := filepath.Join(t.TempDir(), "form.html")
	require.NoError(t, os.WriteFile(path, []byte(contactPage), 0o600))

	h, err := d.Open(ctx, "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "Contact us", h.Title())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contact" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(contactPage))
	}))
	defer srv.Close()

	h, err = d.Open(ctx, srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/contact", h.URL())

	_, err = d.Open(ctx, srv.URL+"/missing")
	assert.Error(t, err)

	_, err = d.Open(ctx, filepath.Join(t.TempDir(), "nope.html"))
	assert.Error(t, err)
}

func TestFill_EndToEnd(t *testing.T) {
	d := NewDriver()
	h := load(t, d, contactPage)

	orch := fill.NewOrchestrator(form.NewAnalyzer(d), mapping.NewMapper(), d,
		fill.WithReader(d), fill.WithPacing(0), fill.WithRetryDelay(0))

	snap, err := orch.Fill(context.Background(), h, fill.Request{
		FormURL:   h.URL(),
		Data:      "John Doe || john@example.com || Hi || Canada || yes || Nick || x",
		Verify:    true,
		FormIndex: 0,
	})
	require.NoError(t, err)

	// nickname is display:none and locked is disabled: both fail, the rest
	// are written and verified.
	assert.Equal(t, fill.StatusPartiallyFilled, snap.Status)
	assert.Equal(t, 5, snap.Completed())
	require.Len(t, snap.Failed(), 2)
	assert.Equal(t, string(page.ReasonNotInteractable), snap.Failed()[0].Reason)

	out, err := d.HTML(h)
	require.NoError(t, err)
	assert.Contains(t, out, `value="john@example.com"`)
}
