// Package resources describes the target resources an import can populate
// and implements their dry-run validation and insertion.
//
// A Resource is looked up by (module, name) through a Registry. The pipeline
// calls Validate while staging and Insert while committing. Insert validates
// again before writing, so a payload that was valid at stage time but no
// longer is (a referenced record was deleted, a unique value was taken)
// fails with field errors instead of writing bad data.
package resources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/validator"
	"gorm.io/gorm"

	"github.com/sahana/importer/internal/payload"
)

type FieldType string

const (
	FieldText    FieldType = "text"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldEmail   FieldType = "email"
	FieldURL     FieldType = "url"
	FieldEnum    FieldType = "enum"
	// FieldReference holds the id of a row in another table.
	FieldReference FieldType = "reference"
)

// Reference names the table a FieldReference points at. When LookupColumn
// is set, a non-numeric value is resolved through that column instead.
type Reference struct {
	Table        string
	LookupColumn string
}

type Field struct {
	Name      string
	Type      FieldType
	Required  bool
	Unique    bool
	MaxLength int
	Options   []string // allowed values for FieldEnum
	Default   string   // applied when the cell is empty
	Reference *Reference
}

// FieldError is one rejected field of one payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldNames returns the distinct field names of errs in order.
func FieldNames(errs []FieldError) []string {
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		if !slice.Contain(names, e.Field) {
			names = append(names, e.Field)
		}
	}
	return names
}

// Record is a domain model that exposes its primary key after insert.
type Record interface {
	GetID() uint
}

// Resource is a target of imports.
type Resource struct {
	Module string
	Name   string
	Table  string
	Label  string
	Fields []Field
	// Build turns a validated, defaulted payload into the model to insert.
	Build func(v Values) Record
}

// Key returns "<module>_<name>", the naming convention of domain tables.
func (r *Resource) Key() string {
	return r.Module + "_" + r.Name
}

// Field returns the descriptor of the named field.
func (r *Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists the resource's field names in declaration order.
func (r *Resource) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks p without writing. db is used for uniqueness and
// reference lookups; pass the open transaction when one exists.
func (r *Resource) Validate(ctx context.Context, db *gorm.DB, p payload.Payload) ([]FieldError, error) {
	values := r.withDefaults(p)

	var errs []FieldError
	for _, f := range r.Fields {
		msg, err := r.checkField(ctx, db, f, values[f.Name])
		if err != nil {
			return nil, err
		}
		if msg != "" {
			errs = append(errs, FieldError{Field: f.Name, Message: msg})
		}
	}
	return errs, nil
}

// Insert validates p and writes it. It returns field errors without writing
// when validation fails; a non-nil error means the store itself failed.
func (r *Resource) Insert(ctx context.Context, db *gorm.DB, p payload.Payload) (uint, []FieldError, error) {
	errs, err := r.Validate(ctx, db, p)
	if err != nil || len(errs) > 0 {
		return 0, errs, err
	}

	values := r.withDefaults(p)
	for _, f := range r.Fields {
		if f.Type != FieldReference || values[f.Name] == "" {
			continue
		}
		id, _, err := resolveReference(ctx, db, f, values[f.Name])
		if err != nil {
			return 0, nil, err
		}
		values[f.Name] = strconv.FormatUint(uint64(id), 10)
	}

	record := r.Build(values)
	if err := db.WithContext(ctx).Create(record).Error; err != nil {
		if IsConstraintViolation(err) {
			return 0, []FieldError{{Field: r.constraintField(), Message: err.Error()}}, nil
		}
		return 0, nil, fmt.Errorf("insert into %s: %w", r.Table, err)
	}
	return record.GetID(), nil, nil
}

// IsConstraintViolation reports whether err is a unique or foreign key
// violation raised by the database.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated)
}

func (r *Resource) constraintField() string {
	for _, f := range r.Fields {
		if f.Unique {
			return f.Name
		}
	}
	return r.Key()
}

func (r *Resource) withDefaults(p payload.Payload) Values {
	values := make(Values, len(r.Fields))
	for _, f := range r.Fields {
		v := strings.TrimSpace(p[f.Name])
		if v == "" {
			v = f.Default
		}
		values[f.Name] = v
	}
	return values
}

func (r *Resource) checkField(ctx context.Context, db *gorm.DB, f Field, v string) (string, error) {
	if v == "" {
		if f.Required {
			return "is required", nil
		}
		return "", nil
	}
	if f.MaxLength > 0 && len([]rune(v)) > f.MaxLength {
		return fmt.Sprintf("longer than %d characters", f.MaxLength), nil
	}

	switch f.Type {
	case FieldInteger:
		if !validator.IsIntStr(v) {
			return "must be an integer", nil
		}
	case FieldFloat:
		if !validator.IsFloatStr(v) && !validator.IsIntStr(v) {
			return "must be a number", nil
		}
	case FieldEmail:
		if !validator.IsEmail(v) {
			return "must be an email address", nil
		}
	case FieldURL:
		if !validator.IsUrl(v) {
			return "must be a URL", nil
		}
	case FieldEnum:
		if !slice.Contain(f.Options, v) {
			return fmt.Sprintf("must be one of %s", strings.Join(f.Options, ", ")), nil
		}
	case FieldReference:
		_, found, err := resolveReference(ctx, db, f, v)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("references a missing %s record", f.Reference.Table), nil
		}
	}

	if f.Unique {
		var count int64
		err := db.WithContext(ctx).Table(r.Table).Where(fmt.Sprintf("%s = ?", f.Name), v).Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("check unique %s.%s: %w", r.Table, f.Name, err)
		}
		if count > 0 {
			return "must be unique", nil
		}
	}
	return "", nil
}

func resolveReference(ctx context.Context, db *gorm.DB, f Field, v string) (uint, bool, error) {
	if f.Reference == nil {
		return 0, false, fmt.Errorf("field %s has no reference target", f.Name)
	}

	query := db.WithContext(ctx).Table(f.Reference.Table).Select("id")
	if validator.IsIntStr(v) {
		query = query.Where("id = ?", v)
	} else if f.Reference.LookupColumn != "" {
		query = query.Where(fmt.Sprintf("%s = ?", f.Reference.LookupColumn), v)
	} else {
		return 0, false, nil
	}

	var ids []uint
	if err := query.Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, false, fmt.Errorf("resolve %s reference: %w", f.Reference.Table, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}
