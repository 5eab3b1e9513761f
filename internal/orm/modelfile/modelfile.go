// Package modelfile reads model declarations from YAML files.
//
//	models:
//	  - name: Post
//	    fields:
//	      - {name: title, kind: char, max_length: 200, required: true}
//	      - {name: status, kind: choice, choices: [draft, published], default: draft}
//	    relations:
//	      - {name: author, kind: foreign_key, target: User, related_name: posts, on_delete: cascade}
//	      - {name: tags, kind: many_to_many, target: Tag, related_name: posts}
package modelfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apexorm/apexorm/internal/orm/schema"
)

// File is the YAML document
type File struct {
	Models []Model `yaml:"models"`
}

// Model is one model entry
type Model struct {
	Name      string     `yaml:"name"`
	Namespace string     `yaml:"namespace,omitempty"`
	Table     string     `yaml:"table,omitempty"`
	Fields    []Field    `yaml:"fields,omitempty"`
	Relations []Relation `yaml:"relations,omitempty"`
}

// Field is one scalar field entry
type Field struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	MaxLength  int         `yaml:"max_length,omitempty"`
	PrimaryKey bool        `yaml:"primary_key,omitempty"`
	Required   bool        `yaml:"required,omitempty"`
	Unique     bool        `yaml:"unique,omitempty"`
	Default    interface{} `yaml:"default,omitempty"`
	Choices    []string    `yaml:"choices,omitempty"`
	UploadTo   string      `yaml:"upload_to,omitempty"`
}

// Relation is one relationship entry
type Relation struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Target      string `yaml:"target"`
	RelatedName string `yaml:"related_name,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	OnDelete    string `yaml:"on_delete,omitempty"`
}

// Load reads and converts the model files at paths, in order
func Load(paths ...string) ([]schema.Declaration, error) {
	var decls []schema.Declaration
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		d, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		decls = append(decls, d...)
	}
	return decls, nil
}

// Parse converts a YAML document to declarations, reporting every invalid
// entry.
func Parse(data []byte) ([]schema.Declaration, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid model file: %w", err)
	}

	var errs []error
	decls := make([]schema.Declaration, 0, len(file.Models))
	for _, m := range file.Models {
		decl, err := m.Declaration()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		decls = append(decls, decl)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return decls, nil
}

// Declaration converts the entry to a schema declaration
func (m Model) Declaration() (schema.Declaration, error) {
	decl := schema.Declaration{Name: m.Name, Namespace: m.Namespace, Table: m.Table}
	for _, f := range m.Fields {
		field, err := f.field()
		if err != nil {
			return decl, fmt.Errorf("model %s: %w", m.Name, err)
		}
		decl.Fields = append(decl.Fields, field)
	}
	for _, r := range m.Relations {
		rel, err := r.relation()
		if err != nil {
			return decl, fmt.Errorf("model %s: %w", m.Name, err)
		}
		decl.Relations = append(decl.Relations, rel)
	}
	return decl, nil
}

func (f Field) field() (*schema.Field, error) {
	kind, err := schema.ParseKind(f.Kind)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}

	var opts []schema.FieldOption
	if f.PrimaryKey {
		opts = append(opts, schema.PrimaryKey())
	}
	if f.Required {
		opts = append(opts, schema.Required())
	}
	if f.Unique {
		opts = append(opts, schema.Unique())
	}
	if f.Default != nil {
		opts = append(opts, schema.Default(f.Default))
	}
	if f.UploadTo != "" {
		opts = append(opts, schema.UploadTo(f.UploadTo))
	}

	switch kind {
	case schema.KindChar:
		return schema.Char(f.Name, f.MaxLength, opts...), nil
	case schema.KindChoice:
		if len(f.Choices) == 0 {
			return nil, fmt.Errorf("field %s: choice field needs choices", f.Name)
		}
		choices := make([]schema.Choice, len(f.Choices))
		for i, c := range f.Choices {
			choices[i] = schema.Choice{Value: c, Label: c}
		}
		return schema.ChoiceField(f.Name, choices, opts...), nil
	default:
		return schema.NewField(f.Name, kind, opts...), nil
	}
}

func (r Relation) relation() (*schema.Relationship, error) {
	if r.Target == "" {
		return nil, fmt.Errorf("relation %s has no target", r.Name)
	}
	action, err := schema.ParseCascadeAction(r.OnDelete)
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", r.Name, err)
	}

	var opts []schema.RelationOption
	if r.RelatedName != "" {
		opts = append(opts, schema.RelatedName(r.RelatedName))
	}
	if r.Required {
		opts = append(opts, schema.RequiredRelation())
	}
	opts = append(opts, schema.OnDelete(action))

	target := schema.Ref(r.Target)
	switch strings.ToLower(r.Kind) {
	case "", "foreign_key", "fk":
		return schema.ForeignKeyTo(r.Name, target, opts...), nil
	case "one_to_one", "o2o":
		return schema.OneToOneTo(r.Name, target, opts...), nil
	case "many_to_many", "m2m":
		return schema.ManyToManyTo(r.Name, target, opts...), nil
	default:
		return nil, fmt.Errorf("relation %s: unknown kind %q", r.Name, r.Kind)
	}
}
