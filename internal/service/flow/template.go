package flow

import (
	"fmt"
	"strings"
)

// Placeholder defaults. Every placeholder a template may reference has one,
// so a rendered reply never contains a raw {token}.
const (
	DefaultName        = "você"
	DefaultOccasion    = "essa ocasião especial"
	DefaultRecipient   = "quem você ama"
	DefaultProductName = "nossas peças"
	DefaultPrice       = "sob consulta"
)

// Values are the substitutions available to a template. Empty fields render
// as their default.
type Values struct {
	Name        string
	Occasion    string
	Recipient   string
	ProductName string
	Price       string
}

type field int

const (
	fieldLiteral field = iota
	fieldName
	fieldOccasion
	fieldRecipient
	fieldProductName
	fieldPrice
)

var placeholders = map[string]field{
	"name":         fieldName,
	"occasion":     fieldOccasion,
	"recipient":    fieldRecipient,
	"product_name": fieldProductName,
	"price":        fieldPrice,
}

func (v Values) lookup(f field) string {
	pick := func(s, def string) string {
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	}
	switch f {
	case fieldName:
		return pick(v.Name, DefaultName)
	case fieldOccasion:
		return pick(v.Occasion, DefaultOccasion)
	case fieldRecipient:
		return pick(v.Recipient, DefaultRecipient)
	case fieldProductName:
		return pick(v.ProductName, DefaultProductName)
	case fieldPrice:
		return pick(v.Price, DefaultPrice)
	}
	return ""
}

type segment struct {
	field field
	text  string
}

// Template is a parsed reply template.
type Template struct {
	src      string
	segments []segment
}

// ParseTemplate parses src, rejecting unknown or unterminated placeholders.
func ParseTemplate(src string) (Template, error) {
	t := Template{src: src}
	rest := src
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.segments = append(t.segments, segment{text: rest})
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{text: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Template{}, fmt.Errorf("flow: template %q: unterminated placeholder", src)
		}
		name := rest[open+1 : open+end]
		f, ok := placeholders[name]
		if !ok {
			return Template{}, fmt.Errorf("flow: template %q: unknown placeholder {%s}", src, name)
		}
		t.segments = append(t.segments, segment{field: f})
		rest = rest[open+end+1:]
	}
	return t, nil
}

// MustTemplate is ParseTemplate for package-level templates.
func MustTemplate(src string) Template {
	t, err := ParseTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes v into the template.
func (t Template) Render(v Values) string {
	var b strings.Builder
	b.Grow(len(t.src))
	for _, s := range t.segments {
		if s.field == fieldLiteral {
			b.WriteString(s.text)
			continue
		}
		b.WriteString(v.lookup(s.field))
	}
	return b.String()
}

// String returns the template source.
func (t Template) String() string { return t.src }
