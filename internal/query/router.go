package query

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"
	"text/template"
)

// DefaultFallback is returned when no intent matches.
const DefaultFallback = "I can answer questions about air quality, irrigation, the 7-day forecast, " +
	"temperature, rainfall, soil moisture and satellite coverage. Try asking \"should I irrigate today?\""

// Intent maps trigger substrings to a response template.
type Intent struct {
	Name     string   `toml:"name"`
	Triggers []string `toml:"triggers"`
	Template string   `toml:"template"`

	// Effect is applied by the caller, e.g. "filter=air_quality".
	Effect string `toml:"effect"`
}

// Answer is a routed response.
type Answer struct {
	Intent string `json:"intent"`
	Text   string `json:"answer"`
	Effect string `json:"effect,omitempty"`
}

type compiledIntent struct {
	Intent
	triggers []string
	tmpl     *template.Template
}

// Router answers free text with the first intent whose trigger appears in it.
// It is immutable after construction.
type Router struct {
	intents  []compiledIntent
	fallback string
}

var funcs = template.FuncMap{
	"round":   func(v float64) string { return fmt.Sprintf("%.0f", math.Round(v)) },
	"f1":      func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"join":    join,
	"missing": missing,
}

// join renders any slice as a comma-separated list.
func join(items any) string {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprint(items)
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(v.Index(i).Interface())
	}
	return strings.Join(parts, ", ")
}

// missing reports whether name appears in a slice of metric names.
func missing(items any, name string) bool {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if fmt.Sprint(v.Index(i).Interface()) == name {
			return true
		}
	}
	return false
}

// NewRouter parses every template up front.
func NewRouter(intents []Intent, fallback string) (*Router, error) {
	if fallback == "" {
		fallback = DefaultFallback
	}

	r := &Router{fallback: fallback}
	for i, in := range intents {
		if in.Name == "" {
			return nil, fmt.Errorf("intent %d has no name", i)
		}
		if len(in.Triggers) == 0 {
			return nil, fmt.Errorf("intent %q has no triggers", in.Name)
		}

		tmpl, err := template.New(in.Name).Funcs(funcs).Option("missingkey=error").Parse(in.Template)
		if err != nil {
			return nil, fmt.Errorf("intent %q: parse template: %w", in.Name, err)
		}

		triggers := make([]string, 0, len(in.Triggers))
		for _, t := range in.Triggers {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				triggers = append(triggers, t)
			}
		}

		r.intents = append(r.intents, compiledIntent{Intent: in, triggers: triggers, tmpl: tmpl})
	}
	return r, nil
}

// Match returns the first intent with a trigger contained in text.
func (r *Router) Match(text string) (Intent, bool) {
	if ci := r.match(text); ci != nil {
		return ci.Intent, true
	}
	return Intent{}, false
}

// Route renders the matching intent against data. It never fails: unmatched
// input or a template error yields the fallback text.
func (r *Router) Route(text string, data any) Answer {
	ci := r.match(text)
	if ci == nil {
		return Answer{Intent: "fallback", Text: r.fallback}
	}

	var buf bytes.Buffer
	if err := ci.tmpl.Execute(&buf, data); err != nil {
		return Answer{Intent: "fallback", Text: r.fallback}
	}
	return Answer{
		Intent: ci.Name,
		Text:   strings.TrimSpace(buf.String()),
		Effect: ci.Effect,
	}
}

// Intents returns the intent names in declaration order.
func (r *Router) Intents() []string {
	names := make([]string, len(r.intents))
	for i, ci := range r.intents {
		names[i] = ci.Name
	}
	return names
}

func (r *Router) match(text string) *compiledIntent {
	lower := strings.ToLower(text)
	for i := range r.intents {
		if containsAny(lower, r.intents[i].triggers...) {
			return &r.intents[i]
		}
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
