package static

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/clippypour/pkg/page"
)

// Submission is a form submission recorded by the static driver. Nothing
// is sent over the network.
type Submission struct {
	// Form is the selector of the submitted form.
	Form   string
	Action string
	Method string
	Values url.Values
}

// Submit records the submission the browser would make for the form
// matched by selector, or the form enclosing the element it matches.
func (d *Driver) Submit(ctx context.Context, h page.Handle, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	}
	f := s
	if s.Get(0).Data != "form" {
		f = s.Closest("form")
	}
	if f.Length() == 0 {
		return fmt.Errorf("submit %s: %w", selector, page.ErrNoForm)
	}

	n := f.Get(0)
	method := strings.ToUpper(attrVal(n, "method"))
	if method != "POST" {
		method = "GET"
	}
	sub := Submission{
		Form:   uniqueSelector(p.doc.Get(0), n),
		Action: resolveAction(p.handle.URL(), attrVal(n, "action")),
		Method: method,
		Values: formValues(f),
	}
	p.submissions = append(p.submissions, sub)

	d.logger.Infof("Recorded %s submission of %s to %s", sub.Method, sub.Form, sub.Action)
	return nil
}

// Submissions returns the submissions recorded for h, oldest first.
func (d *Driver) Submissions(h page.Handle) ([]Submission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return nil, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}
	return append([]Submission(nil), p.submissions...), nil
}

func resolveAction(pageURL, action string) string {
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}

// formValues collects the successful controls of form in document order:
// named, enabled, and checked where they are toggles.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		name := attrVal(n, "name")
		if name == "" || disabled(n) {
			return
		}
		switch n.Data {
		case "textarea":
			values.Add(name, s.Text())
		case "select":
			for _, o := range options(s) {
				if o.Selected {
					values.Add(name, o.Value)
				}
			}
		default:
			switch strings.ToLower(attrVal(n, "type")) {
			case "submit", "button", "reset", "image", "file":
			case "checkbox", "radio":
				if !hasAttr(n, "checked") {
					return
				}
				value, ok := attr(n, "value")
				if !ok {
					value = "on"
				}
				values.Add(name, value)
			default:
				values.Add(name, attrVal(n, "value"))
			}
		}
	})
	return values
}
