package schema

import (
	"github.com/google/uuid"

	"github.com/apexorm/apexorm/internal/orm/validation"
)

// FieldOption configures a Field
type FieldOption func(*Field)

// PrimaryKey marks the field as the model's identity column
func PrimaryKey() FieldOption {
	return func(f *Field) {
		f.PrimaryKey = true
		f.Nullable = false
	}
}

// AutoIncrement lets the backend assign the value on insert
func AutoIncrement() FieldOption {
	return func(f *Field) {
		f.AutoIncrement = true
	}
}

// Required disallows NULL
func Required() FieldOption {
	return func(f *Field) {
		f.Nullable = false
	}
}

// Unique adds a unique constraint
func Unique() FieldOption {
	return func(f *Field) {
		f.Unique = true
	}
}

// Default sets a constant default or, for a DefaultFunc, a producer
func Default(v interface{}) FieldOption {
	return func(f *Field) {
		f.Default = v
	}
}

// DefaultFn sets a zero-arg producer as default
func DefaultFn(fn func() interface{}) FieldOption {
	return func(f *Field) {
		f.Default = DefaultFunc(fn)
	}
}

// Validators appends validators run on save
func Validators(v ...validation.Func) FieldOption {
	return func(f *Field) {
		f.Validators = append(f.Validators, v...)
	}
}

// UploadTo sets the storage folder of file and image fields
func UploadTo(folder string) FieldOption {
	return func(f *Field) {
		f.UploadTo = folder
	}
}

// NewField builds a field of the given kind with kind-specific validators
func NewField(name string, kind Kind, opts ...FieldOption) *Field {
	f := &Field{Name: name, Kind: kind, Nullable: true}
	switch kind {
	case KindEmail:
		f.MaxLength = 255
		f.Validators = append(f.Validators, validation.Email)
	case KindURL:
		f.MaxLength = 200
		f.Validators = append(f.Validators, validation.URL)
	case KindIPAddress:
		f.MaxLength = 45
		f.Validators = append(f.Validators, validation.IP)
	case KindUUID:
		f.Default = DefaultFunc(func() interface{} { return uuid.NewString() })
		f.Validators = append(f.Validators, validation.UUID)
	case KindULID:
		f.Default = DefaultFunc(func() interface{} { return NewULID() })
	case KindFile, KindImage:
		f.MaxLength = 255
		f.UploadTo = "uploads"
		if kind == KindImage {
			f.Validators = append(f.Validators, validation.Extension(validation.ImageExtensions...))
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.MaxLength > 0 && kind != KindFile && kind != KindImage {
		f.Validators = append(f.Validators, validation.MaxLength(f.MaxLength))
	}
	return f
}

// Integer declares an integer field
func Integer(name string, opts ...FieldOption) *Field {
	return NewField(name, KindInteger, opts...)
}

// BigInteger declares a 64-bit integer field
func BigInteger(name string, opts ...FieldOption) *Field {
	return NewField(name, KindBigInteger, opts...)
}

// Float declares a floating point field
func Float(name string, opts ...FieldOption) *Field {
	return NewField(name, KindFloat, opts...)
}

// Decimal declares a fixed precision numeric field
func Decimal(name string, opts ...FieldOption) *Field {
	return NewField(name, KindDecimal, opts...)
}

// Char declares a bounded text field
func Char(name string, maxLength int, opts ...FieldOption) *Field {
	return NewField(name, KindChar, append([]FieldOption{withMaxLength(maxLength)}, opts...)...)
}

// Text declares an unbounded text field
func Text(name string, opts ...FieldOption) *Field {
	return NewField(name, KindText, opts...)
}

// Boolean declares a boolean field
func Boolean(name string, opts ...FieldOption) *Field {
	return NewField(name, KindBoolean, opts...)
}

// DateTime declares a timestamp field
func DateTime(name string, opts ...FieldOption) *Field {
	return NewField(name, KindDateTime, opts...)
}

// Date declares a calendar date field
func Date(name string, opts ...FieldOption) *Field {
	return NewField(name, KindDate, opts...)
}

// Time declares a time-of-day field
func Time(name string, opts ...FieldOption) *Field {
	return NewField(name, KindTime, opts...)
}

// JSON declares a field holding an arbitrary JSON document
func JSON(name string, opts ...FieldOption) *Field {
	return NewField(name, KindJSON, opts...)
}

// UUID declares a UUID field defaulting to a random UUID
func UUID(name string, opts ...FieldOption) *Field {
	return NewField(name, KindUUID, opts...)
}

// ULID declares a ULID field defaulting to a monotonic ULID
func ULID(name string, opts ...FieldOption) *Field {
	return NewField(name, KindULID, opts...)
}

// Email declares an e-mail address field
func Email(name string, opts ...FieldOption) *Field {
	return NewField(name, KindEmail, opts...)
}

// URL declares a URL field
func URL(name string, opts ...FieldOption) *Field {
	return NewField(name, KindURL, opts...)
}

// IPAddress declares an IPv4/IPv6 address field
func IPAddress(name string, opts ...FieldOption) *Field {
	return NewField(name, KindIPAddress, opts...)
}

// ChoiceField declares a text field restricted to the given choices
func ChoiceField(name string, choices []Choice, opts ...FieldOption) *Field {
	values := make([]string, len(choices))
	maxLen := 1
	for i, c := range choices {
		values[i] = c.Value
		if len(c.Value) > maxLen {
			maxLen = len(c.Value)
		}
	}
	f := NewField(name, KindChoice, append([]FieldOption{withMaxLength(maxLen)}, opts...)...)
	f.Choices = choices
	f.Validators = append(f.Validators, validation.OneOf(values...))
	return f
}

// File declares a field storing the relative path of an uploaded file
func File(name string, opts ...FieldOption) *Field {
	return NewField(name, KindFile, opts...)
}

// Image declares a file field restricted to image extensions
func Image(name string, opts ...FieldOption) *Field {
	return NewField(name, KindImage, opts...)
}

func withMaxLength(n int) FieldOption {
	return func(f *Field) {
		f.MaxLength = n
	}
}

// RelationOption configures a Relationship
type RelationOption func(*Relationship)

// RelatedName requests a reverse accessor on the target model
func RelatedName(name string) RelationOption {
	return func(r *Relationship) {
		r.RelatedName = name
	}
}

// RequiredRelation makes the backing foreign-key column NOT NULL
func RequiredRelation() RelationOption {
	return func(r *Relationship) {
		r.Nullable = false
	}
}

// OnDelete records the referential action emitted in DDL
func OnDelete(action CascadeAction) RelationOption {
	return func(r *Relationship) {
		r.OnDelete = action
	}
}

// ForeignKeyTo declares a forward reference to target
func ForeignKeyTo(name string, target LazyRef, opts ...RelationOption) *Relationship {
	r := &Relationship{Name: name, Kind: ForeignKey, Target: target, Nullable: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OneToOneTo declares a unique forward reference to target
func OneToOneTo(name string, target LazyRef, opts ...RelationOption) *Relationship {
	r := ForeignKeyTo(name, target, opts...)
	r.Kind = OneToOne
	r.Unique = true
	return r
}

// ManyToManyTo declares a collection backed by a junction table
func ManyToManyTo(name string, target LazyRef, opts ...RelationOption) *Relationship {
	r := &Relationship{Name: name, Kind: ManyToMany, Target: target, Nullable: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
