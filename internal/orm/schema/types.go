// Package schema provides the declaration types of apexorm models and the
// two-phase builder that turns them into table descriptors. Scalar columns and
// forward references are materialized when a model is declared; reverse
// accessors and many-to-many junction tables are created by Registry.Finalize
// once every model is known.
package schema

import (
	"fmt"
	"strings"

	"github.com/apexorm/apexorm/internal/orm/validation"
)

// Kind represents the storage kind of a scalar field
type Kind int

const (
	// Numeric kinds
	KindInteger Kind = iota
	KindBigInteger
	KindFloat
	KindDecimal

	// Text kinds
	KindChar
	KindText

	// Boolean
	KindBoolean

	// Time kinds
	KindDateTime
	KindDate
	KindTime

	// Structured data
	KindJSON

	// Unique identifiers
	KindUUID
	KindULID

	// Validated text kinds
	KindEmail
	KindURL
	KindIPAddress
	KindChoice

	// File references stored as relative paths
	KindFile
	KindImage
)

var kindNames = map[Kind]string{
	KindInteger:    "integer",
	KindBigInteger: "biginteger",
	KindFloat:      "float",
	KindDecimal:    "decimal",
	KindChar:       "char",
	KindText:       "text",
	KindBoolean:    "boolean",
	KindDateTime:   "datetime",
	KindDate:       "date",
	KindTime:       "time",
	KindJSON:       "json",
	KindUUID:       "uuid",
	KindULID:       "ulid",
	KindEmail:      "email",
	KindURL:        "url",
	KindIPAddress:  "ip",
	KindChoice:     "choice",
	KindFile:       "file",
	KindImage:      "image",
}

// String returns the string representation of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a string to a Kind
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	switch s {
	case "int":
		return KindInteger, nil
	case "bigint":
		return KindBigInteger, nil
	case "string":
		return KindChar, nil
	case "bool":
		return KindBoolean, nil
	case "timestamp":
		return KindDateTime, nil
	}
	return 0, fmt.Errorf("unknown field kind: %s", s)
}

// IsText reports whether values of the kind are stored as strings
func (k Kind) IsText() bool {
	switch k {
	case KindChar, KindText, KindEmail, KindURL, KindIPAddress, KindChoice, KindFile, KindImage, KindUUID, KindULID:
		return true
	}
	return false
}

// DefaultFunc produces a default value each time it is called
type DefaultFunc func() interface{}

// Choice is one allowed value of a choice field
type Choice struct {
	Value string
	Label string
}

// Field describes one scalar column of a model
type Field struct {
	Name          string
	Kind          Kind
	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
	Unique        bool
	MaxLength     int
	Default       interface{}
	Validators    []validation.Func
	Choices       []Choice
	UploadTo      string

	// Relation is set on implicit <attr>_id columns and names the forward
	// relationship backing the column.
	Relation string
}

// HasDefault reports whether the field declares a default
func (f *Field) HasDefault() bool {
	return f.Default != nil
}

// DefaultValue returns the default, invoking it when it is a producer
func (f *Field) DefaultValue() interface{} {
	switch d := f.Default.(type) {
	case DefaultFunc:
		return d()
	case func() interface{}:
		return d()
	default:
		return d
	}
}

// RelationKind distinguishes the variants of a relationship member
type RelationKind int

const (
	// ForeignKey is a forward scalar reference backed by a local <attr>_id column
	ForeignKey RelationKind = iota
	// OneToOne is a ForeignKey with a unique local column
	OneToOne
	// ManyToMany is a collection backed by a junction table
	ManyToMany
	// ReverseForeignKey is the collection created on the target of a ForeignKey
	ReverseForeignKey
	// ReverseOneToOne is the scalar created on the target of a OneToOne
	ReverseOneToOne
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case ForeignKey:
		return "fk"
	case OneToOne:
		return "o2o"
	case ManyToMany:
		return "m2m"
	case ReverseForeignKey:
		return "reverse_fk"
	case ReverseOneToOne:
		return "reverse_o2o"
	default:
		return "unknown"
	}
}

// CascadeAction represents the ON DELETE action recorded on a foreign key
type CascadeAction int

const (
	CascadeNone CascadeAction = iota
	CascadeRestrict
	CascadeCascade
	CascadeSetNull
	CascadeNoAction
)

// String returns the string representation of the cascade action
func (c CascadeAction) String() string {
	switch c {
	case CascadeRestrict:
		return "restrict"
	case CascadeCascade:
		return "cascade"
	case CascadeSetNull:
		return "set_null"
	case CascadeNoAction:
		return "no_action"
	default:
		return ""
	}
}

// SQL returns the referential action keyword, or "" when none was declared
func (c CascadeAction) SQL() string {
	switch c {
	case CascadeRestrict:
		return "RESTRICT"
	case CascadeCascade:
		return "CASCADE"
	case CascadeSetNull:
		return "SET NULL"
	case CascadeNoAction:
		return "NO ACTION"
	default:
		return ""
	}
}

// ParseCascadeAction converts a string to a CascadeAction
func ParseCascadeAction(s string) (CascadeAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return CascadeNone, nil
	case "restrict":
		return CascadeRestrict, nil
	case "cascade":
		return CascadeCascade, nil
	case "set_null", "set null":
		return CascadeSetNull, nil
	case "no_action", "no action":
		return CascadeNoAction, nil
	default:
		return 0, fmt.Errorf("unknown cascade action: %s", s)
	}
}

// LazyRef names a relationship target. It holds either a direct model handle
// or a model name that Registry.Finalize resolves.
type LazyRef struct {
	name  string
	model *Model
}

// Ref references a model by its simple or fully-qualified name
func Ref(name string) LazyRef {
	return LazyRef{name: name}
}

// RefTo references an already declared model
func RefTo(m *Model) LazyRef {
	return LazyRef{name: m.FullName(), model: m}
}

// Name returns the referenced model name
func (r LazyRef) Name() string {
	return r.name
}

// Model returns the referenced model, or nil when not yet resolved
func (r LazyRef) Model() *Model {
	return r.model
}

// Resolved reports whether the reference points at a model
func (r LazyRef) Resolved() bool {
	return r.model != nil
}

// Relationship is a reference member of a model
type Relationship struct {
	Name        string
	Kind        RelationKind
	Target      LazyRef
	RelatedName string
	Nullable    bool
	Unique      bool
	OnDelete    CascadeAction

	// Column is the local foreign-key column of forward relations.
	Column string
	// RemoteColumn is the target's foreign-key column for reverse relations.
	RemoteColumn string

	// Junction backs ManyToMany relations. OwnerColumn points at this
	// model's rows and TargetColumn at the target's.
	Junction     *JunctionTable
	OwnerColumn  string
	TargetColumn string

	// Public is the public accessor name of an internal many-to-many relation
	Public string
	// Inverse names the relation on Target this one mirrors, if any
	Inverse string
}

// Collection reports whether the relation holds many related rows
func (r *Relationship) Collection() bool {
	return r.Kind == ManyToMany || r.Kind == ReverseForeignKey
}

// Forward reports whether the relation is backed by a local column
func (r *Relationship) Forward() bool {
	return r.Kind == ForeignKey || r.Kind == OneToOne
}

// JunctionTable is the auxiliary table of a many-to-many relationship
type JunctionTable struct {
	Name        string
	LeftModel   *Model
	LeftColumn  string
	RightModel  *Model
	RightColumn string
}

// MemberKind tags a Member
type MemberKind int

const (
	MemberColumn MemberKind = iota
	MemberRelationship
)

// Member is a model attribute: either a Column or a Relationship
type Member struct {
	Kind     MemberKind
	Column   *Field
	Relation *Relationship
}

// Record is the view of an instance handed to model-level hooks
type Record interface {
	Get(name string) interface{}
	Set(name string, value interface{}) error
}

// CleanFunc is the model-level post-validation hook
type CleanFunc func(Record) error

// Model is the descriptor of a declared model
type Model struct {
	Name      string
	Namespace string
	Table     string

	Fields    []*Field
	Relations []*Relationship

	// PublicToInternal maps public many-to-many names to the internal
	// relation attribute created by Finalize.
	PublicToInternal map[string]string

	Clean CleanFunc

	fields    map[string]*Field
	relations map[string]*Relationship
	m2m       []*Relationship
}

func newModel(name, namespace, table string) *Model {
	return &Model{
		Name:             name,
		Namespace:        namespace,
		Table:            table,
		PublicToInternal: make(map[string]string),
		fields:           make(map[string]*Field),
		relations:        make(map[string]*Relationship),
	}
}

// FullName returns the fully-qualified model name
func (m *Model) FullName() string {
	if m.Namespace == "" {
		return m.Name
	}
	return m.Namespace + "." + m.Name
}

// Field returns the column with the given name
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Relation returns the relation stored under name without remapping
func (m *Model) Relation(name string) (*Relationship, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// ResolveRelation maps a public many-to-many name to its internal relation
// before looking it up.
func (m *Model) ResolveRelation(name string) (*Relationship, bool) {
	if internal, ok := m.PublicToInternal[name]; ok {
		name = internal
	}
	return m.Relation(name)
}

// Member returns the column or relationship known under name
func (m *Model) Member(name string) (Member, bool) {
	if f, ok := m.fields[name]; ok {
		return Member{Kind: MemberColumn, Column: f}, true
	}
	if r, ok := m.ResolveRelation(name); ok {
		return Member{Kind: MemberRelationship, Relation: r}, true
	}
	return Member{}, false
}

// HasMember reports whether name is a column, relation or public
// many-to-many accessor. Declared but unfinalized many-to-many names count.
func (m *Model) HasMember(name string) bool {
	if _, ok := m.Member(name); ok {
		return true
	}
	for _, r := range m.m2m {
		if r.Name == name {
			return true
		}
	}
	return false
}

// PrimaryKey returns the primary key column
func (m *Model) PrimaryKey() *Field {
	for _, f := range m.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return nil
}

// Columns returns the column names in declaration order
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Name
	}
	return cols
}

// ManyToMany returns the declared many-to-many accessors
func (m *Model) ManyToMany() []*Relationship {
	return m.m2m
}

func (m *Model) addField(f *Field) {
	m.Fields = append(m.Fields, f)
	m.fields[f.Name] = f
}

func (m *Model) addRelation(r *Relationship) {
	m.Relations = append(m.Relations, r)
	m.relations[r.Name] = r
}

// PendingRelation is reciprocal work queued at registration and consumed by
// Finalize.
type PendingRelation struct {
	Target      LazyRef
	RelatedName string
	Source      *Model
	SourceAttr  string
	Collection  bool
	Kind        RelationKind
}

// String formats the record for logs
func (p PendingRelation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s (%s)", p.Source.FullName(), p.SourceAttr, p.Target.Name(), p.RelatedName, p.Kind)
}

// TableName derives a table name from a model name: a separator is inserted
// before each capitalized word and the result is lowercased, so UserProfile
// becomes user_profile and HTTPServer becomes http_server.
func TableName(name string) string {
	var result []rune
	runes := []rune(name)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
				result = append(result, '_')
			} else if prev != '_' && i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
