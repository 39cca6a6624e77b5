package record

import (
	"regexp"
	"strings"
)

// Palette is the set of colors offered for tags. New tags without a color
// get the first one.
var Palette = []string{
	"#3b82f6", // blue
	"#10b981", // green
	"#f59e0b", // amber
	"#ef4444", // red
	"#8b5cf6", // violet
	"#ec4899", // pink
	"#06b6d4", // cyan
	"#f97316", // orange
}

// DefaultColor is assigned to tags saved without a color.
var DefaultColor = Palette[0]

var colorPattern = regexp.MustCompile(`^#[a-fA-F0-9]{6}$`)

// ValidColor reports whether color is a six digit hex color.
func ValidColor(color string) bool {
	return colorPattern.MatchString(color)
}

// Tag labels clients. Tags have no persisted document and no updated_at
// column; both exist in memory only.
type Tag struct {
	Base

	Name        string
	Slug        string
	Color       string
	Description string

	// ClientCount is filled by aggregate queries only.
	ClientCount int64
}

// NewTag returns an unsaved tag.
func NewTag(name string) *Tag {
	t := &Tag{}
	t.SetName(name)
	return t
}

func (t *Tag) GetName() string { return t.Name }

func (t *Tag) GetSlug() string { return t.Slug }

func (t *Tag) SetName(name string) {
	t.Name = strings.Join(strings.Fields(name), " ")
}

func (t *Tag) SetSlug(slug string) {
	t.Slug = Slugify(slug)
}

func (t *Tag) GenerateSlug() {
	if t.Slug == "" && t.Name != "" {
		t.Slug = Slugify(t.Name)
	}
}

// SetColor stores a lowercased hex color. Anything else is ignored.
func (t *Tag) SetColor(color string) bool {
	if !ValidColor(color) {
		return false
	}
	t.Color = strings.ToLower(color)
	return true
}

func (t *Tag) SetDescription(description string) {
	t.Description = strings.TrimSpace(description)
}

// Clone returns a deep copy of the tag.
func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	out := *t
	out.Base = t.Base.clone()
	return &out
}

var tagSetters = map[string]setter[*Tag]{
	"name": func(t *Tag, v any) error {
		s, err := textField(v)
		t.Name = s
		return err
	},
	"slug": func(t *Tag, v any) error {
		s, err := asString(v)
		t.SetSlug(s)
		return err
	},
	"color": func(t *Tag, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		t.SetColor(strings.TrimSpace(s))
		return nil
	},
	"description": func(t *Tag, v any) error {
		s, err := textArea(v)
		t.Description = s
		return err
	},
}

// Fill applies attrs to the tag. Unknown keys are ignored.
func (t *Tag) Fill(attrs Attributes) error {
	return fill(t, attrs, tagSetters, nil)
}
