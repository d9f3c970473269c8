// Package forms хранит шаблоны полей RFQ по категориям и видам работ
// и проверяет по ним присланные данные формы.
package forms

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

var (
	ErrUnknownCategory = errors.New("category not found")
	ErrUnknownJobType  = errors.New("job type not found")
)

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
)

type Field struct {
	Name     string    `yaml:"name"`
	Label    string    `yaml:"label"`
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required"`
	Min      *float64  `yaml:"min,omitempty"`
	Max      *float64  `yaml:"max,omitempty"`
	Options  []string  `yaml:"options,omitempty"`
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

type JobType struct {
	Slug   string  `yaml:"slug"`
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

type Category struct {
	Slug     string    `yaml:"slug"`
	Name     string    `yaml:"name"`
	JobTypes []JobType `yaml:"job_types"`
}

// Catalog неизменяемый после загрузки набор шаблонов
type Catalog struct {
	Version      int        `yaml:"version"`
	Categories   []Category `yaml:"categories"`
	SharedFields []Field    `yaml:"shared_fields"`

	index map[string]map[string][]Field
}

// Schema всё, что нужно валидатору от каталога
type Schema interface {
	Fields(categorySlug, jobTypeSlug string) ([]Field, error)
}

// Load разбирает YAML-каталог
func Load(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode form templates: %w", err)
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile читает каталог с диска; пустой путь даёт встроенный каталог
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default встроенный каталог
func Default() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(defaultTemplates, &c); err != nil {
		return nil, fmt.Errorf("decode embedded templates: %w", err)
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) build() error {
	c.index = make(map[string]map[string][]Field, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Slug == "" {
			return errors.New("category without slug")
		}
		if _, dup := c.index[cat.Slug]; dup {
			return fmt.Errorf("duplicate category %q", cat.Slug)
		}
		jobs := make(map[string][]Field, len(cat.JobTypes))
		for _, jt := range cat.JobTypes {
			if _, dup := jobs[jt.Slug]; dup {
				return fmt.Errorf("duplicate job type %q in %q", jt.Slug, cat.Slug)
			}
			if err := checkFields(jt.Fields); err != nil {
				return fmt.Errorf("%s/%s: %w", cat.Slug, jt.Slug, err)
			}
			fields := make([]Field, 0, len(jt.Fields)+len(c.SharedFields))
			fields = append(fields, jt.Fields...)
			fields = append(fields, c.SharedFields...)
			jobs[jt.Slug] = fields
		}
		c.index[cat.Slug] = jobs
	}
	return checkFields(c.SharedFields)
}

func checkFields(fields []Field) error {
	for _, f := range fields {
		switch f.Type {
		case FieldText, FieldTextarea, FieldNumber, FieldDate, FieldEmail, FieldPhone:
		case FieldSelect, FieldMultiselect:
			if len(f.Options) == 0 {
				return fmt.Errorf("field %q needs options", f.Name)
			}
		default:
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Fields поля шаблона вместе с общими
func (c *Catalog) Fields(categorySlug, jobTypeSlug string) ([]Field, error) {
	jobs, ok := c.index[categorySlug]
	if !ok {
		return nil, ErrUnknownCategory
	}
	fields, ok := jobs[jobTypeSlug]
	if !ok {
		return nil, ErrUnknownJobType
	}
	return fields, nil
}
