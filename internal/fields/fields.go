// Package fields describes the per-feed settings schema. The set of
// channel metadata fields is declarative data, not code: a list of
// definitions loaded from a YAML file (or the built-in default) drives
// both the admin form shape and how submitted values are stored.
package fields

import (
	"fmt"

	"podhost/internal/models"
	"podhost/internal/sanitize"
)

// Field kinds understood by the generic settings renderer.
const (
	KindTextfield = "textfield"
	KindTextarea  = "textarea"
	KindRichText  = "text_format"
	KindSelect    = "select"
	KindCheckbox  = "checkbox"
	KindGroup     = "group"
)

// Definition is one settings field: name, kind, label, default and,
// for selects, the allowed options; group definitions carry child
// fields that are flattened into the same bag.
type Definition struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Label       string            `yaml:"label"`
	Default     string            `yaml:"default,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Options     map[string]string `yaml:"options,omitempty"`
	Children    []Definition      `yaml:"children,omitempty"`
}

// DefaultDefinitions is the built-in schema used when no schema file
// is configured. It mirrors the standard podcast channel field set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "podcast_title", Type: KindTextfield, Label: "Podcast Title"},
		{Name: "podcast_keywords", Type: KindTextfield, Label: "Keywords",
			Description: "Comma-separated keywords for directories that still read them."},
		{Name: "podcast_description", Type: KindRichText, Label: "Description"},
		{Name: "podcast_language", Type: KindTextfield, Label: "Language", Default: "en"},
		{Name: "itunes_explicit", Type: KindSelect, Label: "Explicit",
			Default: "false", Options: map[string]string{"true": "Yes", "false": "No"}},
		{Name: "itunes_author", Type: KindTextfield, Label: "Author"},
		{Name: "itunes_owner", Type: KindGroup, Label: "Owner", Children: []Definition{
			{Name: "podcast_owner_name", Type: KindTextfield, Label: "Owner Name"},
			{Name: "podcast_owner_email", Type: KindTextfield, Label: "Owner Email"},
		}},
		{Name: "podcast_category", Type: KindTextfield, Label: "Category"},
		{Name: "podcast_sub_category", Type: KindTextfield, Label: "Sub-category"},
		{Name: "podcast_image_url", Type: KindTextfield, Label: "Cover Image URL"},
		{Name: "podcast_link", Type: KindTextfield, Label: "Site Link"},
		{Name: "itunes_type", Type: KindSelect, Label: "Podcast Type",
			Default: "episodic", Options: map[string]string{"episodic": "Episodic", "serial": "Serial"}},
		{Name: "podcast_copyright", Type: KindTextfield, Label: "Copyright"},
	}
}

// Apply folds submitted values into a feed settings bag according to
// the schema: every scalar is ASCII-sanitized, absent values fall back
// to the definition default, select values outside the allowed options
// are rejected, group children are flattened. The second return value
// reports whether the sanitizer removed characters anywhere in the
// batch.
func Apply(defs []Definition, values map[string]string, current models.FeedSettings) (models.FeedSettings, bool, error) {
	out := models.FeedSettings{Label: current.Label, Values: map[string]string{}}
	batch := sanitize.New()
	warned := false

	var apply func(defs []Definition) error
	apply = func(defs []Definition) error {
		for _, def := range defs {
			if def.Type == KindGroup {
				if err := apply(def.Children); err != nil {
					return err
				}
				continue
			}

			value, ok := values[def.Name]
			if !ok {
				value = current.Value(def.Name, def.Default)
			}

			switch def.Type {
			case KindSelect:
				if value == "" {
					value = def.Default
				}
				if _, allowed := def.Options[value]; !allowed && value != "" {
					return fmt.Errorf("field %s: %q is not an allowed option", def.Name, value)
				}
			case KindCheckbox:
				if value != "1" && value != "true" {
					value = ""
				} else {
					value = "1"
				}
			case KindRichText:
				cleaned, w := batch.Sanitize(value)
				warned = warned || w
				out.Values[def.Name] = cleaned
				format, ok := values[def.Name+"_format"]
				if !ok {
					format = current.Value(def.Name+"_format", "basic_html")
				}
				out.Values[def.Name+"_format"] = format
				continue
			}

			cleaned, w := batch.Sanitize(value)
			warned = warned || w
			out.Values[def.Name] = cleaned
		}
		return nil
	}

	if err := apply(defs); err != nil {
		return models.FeedSettings{}, false, err
	}
	return out, warned, nil
}
