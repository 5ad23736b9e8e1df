package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/llm"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/types"
)

const describePrompt = `You describe web forms.
You are given one form with its fields and a heuristic guess at its category.
Reply with JSON only, in this shape:
{"purpose": "<one line>", "category": "<category>", "fields": [{"selector": "<selector>", "data_type": "<short noun phrase>"}]}
category must be one of: %s.
data_type names the kind of data the field expects, such as "email address" or "postal code".
Only include fields you are confident about. Do not explain.`

// Describer refines analyzed forms with a language model. It implements
// form.Describer.
type Describer struct {
	provider llm.Provider
	logger   *logging.Logger
}

// NewDescriber creates a describer over provider.
func NewDescriber(provider llm.Provider, logger *logging.Logger) *Describer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Describer{provider: provider, logger: logger}
}

func (d *Describer) DescribeForm(ctx context.Context, f form.FormDescriptor) (form.Description, error) {
	if d.provider == nil {
		return form.Description{}, fmt.Errorf("describe %s: no model configured", f.Selector)
	}

	messages := []*types.Message{
		types.NewSystemMessage(fmt.Sprintf(describePrompt, strings.Join(form.Categories, ", "))),
		types.NewUserMessage(buildFormPrompt(f)),
	}
	reply, err := d.provider.Complete(ctx, messages)
	if err != nil {
		return form.Description{}, fmt.Errorf("describe %s: %w", f.Selector, err)
	}

	desc, err := parseDescription(reply.Content)
	if err != nil {
		return form.Description{}, fmt.Errorf("describe %s: %w", f.Selector, err)
	}
	d.logger.Debugf("Model described %s as %q (%s)", f.Selector, desc.Purpose, desc.Category)
	return desc, nil
}

func buildFormPrompt(f form.FormDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s\n", f.URL)
	if f.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", f.Title)
	}
	fmt.Fprintf(&b, "Heuristic category: %s\n", f.Category)

	b.WriteString("\nFields:\n")
	for _, field := range f.Fields {
		fmt.Fprintf(&b, "- selector: %s | label: %s | type: %s", field.Selector, field.Label, field.Kind)
		if field.Required {
			b.WriteString(" | required")
		}
		if len(field.Options) > 0 {
			fmt.Fprintf(&b, " | options: %s", strings.Join(field.Options, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

type describeReply struct {
	Purpose  string `json:"purpose"`
	Category string `json:"category"`
	Fields   []struct {
		Selector string `json:"selector"`
		DataType string `json:"data_type"`
	} `json:"fields"`
}

// parseDescription reads the model reply. Categories are lowercased; the
// analyzer drops values it does not know.
func parseDescription(content string) (form.Description, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return form.Description{}, err
	}

	var reply describeReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return form.Description{}, fmt.Errorf("failed to parse reply: %w", err)
	}

	desc := form.Description{
		Purpose:  strings.TrimSpace(reply.Purpose),
		Category: strings.ToLower(strings.TrimSpace(reply.Category)),
	}
	for _, f := range reply.Fields {
		dt := strings.ToLower(strings.TrimSpace(f.DataType))
		if f.Selector == "" || dt == "" {
			continue
		}
		if desc.DataTypes == nil {
			desc.DataTypes = make(map[string]string)
		}
		desc.DataTypes[f.Selector] = dt
	}
	return desc, nil
}
