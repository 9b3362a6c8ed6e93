// Package screens loads the YAML screens file and turns each screen into a
// grid table configuration.
package screens

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
)

// Source kinds.
const (
	SourcePostgres = "postgres"
	SourceStatic   = "static"
)

// ErrUnknownScreen is returned when a screen id is not in the catalog.
var ErrUnknownScreen = errors.New("unknown screen")

// File is the top-level document of a screens file.
type File struct {
	Screens []Screen `yaml:"screens" validate:"required,min=1,dive"`
}

// Screen declares one table screen.
type Screen struct {
	ID               string            `yaml:"id" validate:"required,screen_id"`
	Title            string            `yaml:"title" validate:"required"`
	RowKey           string            `yaml:"row_key" validate:"required"`
	PageSize         int               `yaml:"page_size" validate:"omitempty,min=1,max=500"`
	SyncQuery        bool              `yaml:"sync_query"`
	SyncPagination   bool              `yaml:"sync_pagination"`
	ActiveKey        string            `yaml:"active_key"`
	WidthPerPageSize bool              `yaml:"width_per_page_size"`
	Selection        string            `yaml:"selection" validate:"omitempty,oneof=checkbox radio"`
	Source           Source            `yaml:"source"`
	Columns          []ColumnDef       `yaml:"columns" validate:"required,min=1,dive"`
	Filters          []FilterDef       `yaml:"filters" validate:"dive"`
	QueryFormat      map[string]string `yaml:"query_format"`
	InitQuery        map[string]any    `yaml:"init_query"`
	Editable         []string          `yaml:"editable"`
}

// Source says where a screen's rows come from.
type Source struct {
	Kind  string           `yaml:"kind" validate:"required,oneof=postgres static"`
	Table string           `yaml:"table" validate:"required_if=Kind postgres"`
	Rows  []map[string]any `yaml:"rows"`
}

// ColumnDef declares one column.
type ColumnDef struct {
	Key        string `yaml:"key" validate:"required"`
	Title      string `yaml:"title"`
	DBColumn   string `yaml:"db_column"`
	Type       string `yaml:"type"`
	Width      int    `yaml:"width" validate:"omitempty,min=1"`
	Align      string `yaml:"align" validate:"omitempty,oneof=left center right"`
	Sortable   bool   `yaml:"sortable"`
	Searchable bool   `yaml:"searchable"`
	Filterable bool   `yaml:"filterable"`
	Hidden     bool   `yaml:"hidden"`
}

// FilterDef declares one field of the filter panel.
type FilterDef struct {
	Field       string      `yaml:"field" validate:"required"`
	Label       string      `yaml:"label"`
	Type        string      `yaml:"type" validate:"omitempty,oneof=input select"`
	Placeholder string      `yaml:"placeholder"`
	Multiple    bool        `yaml:"multiple"`
	Options     []OptionDef `yaml:"options"`
}

// OptionDef is one choice of a select filter.
type OptionDef struct {
	Label string `yaml:"label"`
	Value any    `yaml:"value"`
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	screenIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	yamlLineRegex   = regexp.MustCompile(`line (\d+)`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("screen_id", func(fl validator.FieldLevel) bool {
			return screenIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Catalog holds the screens of one file, in file order.
type Catalog struct {
	screens []Screen
	byID    map[string]int
}

// Load reads, parses and validates a screens file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screens file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse parses and validates a screens document.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		if line := extractLine(err); line > 0 {
			return nil, fmt.Errorf("parse screens (line %d): %w", line, err)
		}
		return nil, fmt.Errorf("parse screens: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}

	c := &Catalog{byID: make(map[string]int, len(f.Screens))}
	for i, s := range f.Screens {
		c.byID[s.ID] = i
		c.screens = append(c.screens, s)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules, and reports every
// violation at once.
func Validate(f *File) error {
	if err := validatorInstance().Struct(f); err != nil {
		return convertValidationError(err)
	}

	var errs []string
	seen := map[string]bool{}
	for i, s := range f.Screens {
		prefix := fmt.Sprintf("screens[%d] (%s)", i, s.ID)
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id", prefix))
		}
		seen[s.ID] = true

		keys := make([]string, 0, len(s.Columns))
		for _, col := range s.Columns {
			if slices.Contains(keys, col.Key) {
				errs = append(errs, fmt.Sprintf("%s: duplicate column %q", prefix, col.Key))
			}
			keys = append(keys, col.Key)
		}
		if !slices.Contains(keys, s.RowKey) {
			errs = append(errs, fmt.Sprintf("%s: row_key %q is not a column", prefix, s.RowKey))
		}
		for _, field := range s.Editable {
			if !slices.Contains(keys, field) {
				errs = append(errs, fmt.Sprintf("%s: editable field %q is not a column", prefix, field))
			}
		}
		for field, name := range s.QueryFormat {
			if _, err := querysync.LookupFormatter(name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: query_format.%s: %v", prefix, field, err))
			}
		}
		if s.Source.Kind == SourceStatic && s.Source.Table != "" {
			errs = append(errs, fmt.Sprintf("%s: static source cannot name a table", prefix))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid screens:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// All returns the screens in file order.
func (c *Catalog) All() []Screen {
	return slices.Clone(c.screens)
}

// Get returns the screen with id.
func (c *Catalog) Get(id string) (Screen, error) {
	i, ok := c.byID[id]
	if !ok {
		return Screen{}, fmt.Errorf("%w: %s", ErrUnknownScreen, id)
	}
	return c.screens[i], nil
}

// Len is the number of screens.
func (c *Catalog) Len() int {
	return len(c.screens)
}

func convertValidationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("invalid screens: %w", err)
	}
	msgs := make([]string, len(ves))
	for i, fe := range ves {
		msgs[i] = fmt.Sprintf("%s failed validation for tag '%s'", yamlishFieldName(fe), fe.Tag())
	}
	return fmt.Errorf("invalid screens:\n  - %s", strings.Join(msgs, "\n  - "))
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

func extractLine(err error) int {
	m := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	var line int
	if _, err := fmt.Sscanf(m[1], "%d", &line); err != nil {
		return 0
	}
	return line
}
