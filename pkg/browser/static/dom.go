package static

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/entrhq/clippypour/pkg/browser"
	"github.com/entrhq/clippypour/pkg/page"
)

const fillableSelector = "input, textarea, select"

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func attributes(n *html.Node) map[string]string {
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// walk visits every element below root in document order.
func walk(root *html.Node, fn func(*html.Node)) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

func count(root *html.Node, pred func(*html.Node) bool) int {
	n := 0
	walk(root, func(el *html.Node) {
		if pred(el) {
			n++
		}
	})
	return n
}

func idSelector(id string) string {
	if plainIdent.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf(`[id="%s"]`, strings.ReplaceAll(id, `"`, `\"`))
}

func uniqueID(root, n *html.Node) (string, bool) {
	id := attrVal(n, "id")
	if id == "" {
		return "", false
	}
	if count(root, func(el *html.Node) bool { return attrVal(el, "id") == id }) != 1 {
		return "", false
	}
	return idSelector(id), true
}

func nthOfType(n *html.Node) int {
	nth := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			nth++
		}
	}
	return nth
}

// uniqueSelector computes a selector matching only n: its id, then
// tag[name=...], then an nth-of-type path anchored at the nearest ancestor
// with a unique id or at the root element.
func uniqueSelector(root, n *html.Node) string {
	if s, ok := uniqueID(root, n); ok {
		return s
	}

	tag := n.Data
	if name := attrVal(n, "name"); name != "" && (tag == "input" || tag == "select" || tag == "textarea") {
		same := count(root, func(el *html.Node) bool { return el.Data == tag && attrVal(el, "name") == name })
		if same == 1 {
			return fmt.Sprintf(`%s[name="%s"]`, tag, strings.ReplaceAll(name, `"`, `\"`))
		}
	}

	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode && cur.Data != "html"; cur = cur.Parent {
		if cur != n {
			if s, ok := uniqueID(root, cur); ok {
				return strings.Join(append([]string{s}, parts...), " > ")
			}
		}
		parts = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, nthOfType(cur))}, parts...)
	}
	return strings.Join(append([]string{"html"}, parts...), " > ")
}

// hiddenByMarkup approximates the rendered visibility of n from markup: the
// hidden attribute, inline display:none or visibility:hidden on n or an
// ancestor, and type=hidden inputs.
func hiddenByMarkup(n *html.Node) bool {
	if n.Data == "input" && strings.EqualFold(attrVal(n, "type"), "hidden") {
		return true
	}
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if hasAttr(cur, "hidden") {
			return true
		}
		style := strings.ToLower(strings.Join(strings.Fields(attrVal(cur, "style")), ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func disabled(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return true
	}
	for cur := n.Parent; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur.Data == "fieldset" && hasAttr(cur, "disabled") {
			return true
		}
	}
	return false
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func labelText(doc *goquery.Document, s *goquery.Selection) string {
	if id := attrVal(s.Get(0), "id"); id != "" {
		label := doc.Find("label").FilterFunction(func(_ int, l *goquery.Selection) bool {
			return attrVal(l.Get(0), "for") == id
		}).First()
		if label.Length() > 0 {
			return squash(label.Text())
		}
	}
	if wrap := s.Closest("label"); wrap.Length() > 0 {
		return squash(wrap.Text())
	}
	return ""
}

// containers returns the form-like containers of doc: its <form> elements,
// or div/section elements holding more than one fillable element when the
// page has no forms.
func containers(doc *goquery.Document) map[*html.Node]bool {
	set := make(map[*html.Node]bool)
	forms := doc.Find("form")
	if forms.Length() > 0 {
		forms.Each(func(_ int, s *goquery.Selection) { set[s.Get(0)] = true })
		return set
	}
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		if s.Find(fillableSelector).Length() > 1 {
			set[s.Get(0)] = true
		}
	})
	return set
}

func probe(doc *goquery.Document) []page.Candidate {
	root := doc.Get(0)
	set := containers(doc)

	var out []page.Candidate
	doc.Find(fillableSelector).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		c := page.Candidate{
			Tag:        n.Data,
			Attributes: attributes(n),
			Selector:   uniqueSelector(root, n),
			Visible:    !hiddenByMarkup(n),
			LabelText:  labelText(doc, s),
		}
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				c.Container = uniqueSelector(root, p)
				break
			}
		}
		if n.Data == "select" {
			s.Find("option").Each(func(_ int, o *goquery.Selection) {
				c.Options = append(c.Options, squash(o.Text()))
			})
		}
		out = append(out, c)
	})
	return out
}

func options(s *goquery.Selection) []browser.Option {
	var out []browser.Option
	anySelected := false
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		n := o.Get(0)
		label := squash(o.Text())
		value, ok := attr(n, "value")
		if !ok {
			value = label
		}
		selected := hasAttr(n, "selected")
		anySelected = anySelected || selected
		out = append(out, browser.Option{Value: value, Label: label, Selected: selected})
	})
	if !anySelected && len(out) > 0 && !hasAttr(s.Get(0), "multiple") {
		out[0].Selected = true
	}
	return out
}

// state computes the element state of the first match of selector.
func state(doc *goquery.Document, selector string) (browser.ElementState, *goquery.Selection) {
	s := doc.Find(selector).First()
	if s.Length() == 0 {
		return browser.ElementState{}, s
	}

	n := s.Get(0)
	st := browser.ElementState{
		Found:    true,
		Tag:      n.Data,
		Type:     strings.ToLower(attrVal(n, "type")),
		Disabled: disabled(n),
		ReadOnly: hasAttr(n, "readonly"),
		Visible:  !hiddenByMarkup(n),
		Checked:  hasAttr(n, "checked"),
	}
	switch n.Data {
	case "textarea":
		st.Value = s.Text()
	case "select":
		st.Options = options(s)
		for _, o := range st.Options {
			if o.Selected {
				st.Value = o.Value
				break
			}
		}
	default:
		st.Value = attrVal(n, "value")
	}
	return st, s
}

// apply writes plan into the document.
func apply(doc *goquery.Document, s *goquery.Selection, plan browser.Plan) {
	n := s.Get(0)
	switch plan.Action {
	case browser.ActionCheck:
		if !plan.Checked {
			s.RemoveAttr("checked")
			return
		}
		if strings.EqualFold(attrVal(n, "type"), "radio") {
			if name := attrVal(n, "name"); name != "" {
				doc.Find("input").FilterFunction(func(_ int, r *goquery.Selection) bool {
					rn := r.Get(0)
					return strings.EqualFold(attrVal(rn, "type"), "radio") && attrVal(rn, "name") == name
				}).RemoveAttr("checked")
			}
		}
		s.SetAttr("checked", "")
	case browser.ActionSelect:
		done := false
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			on := o.Get(0)
			value, ok := attr(on, "value")
			if !ok {
				value = squash(o.Text())
			}
			if !done && value == plan.Value {
				o.SetAttr("selected", "")
				done = true
				return
			}
			o.RemoveAttr("selected")
		})
	default:
		if n.Data == "textarea" {
			s.SetText(plan.Value)
			return
		}
		s.SetAttr("value", plan.Value)
	}
}
