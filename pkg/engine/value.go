package engine

import (
	"fmt"
	"strconv"
	"time"
)

// Kind distinguishes the shapes a statement's object (or a stored column
// value) can take: a resource reference, or one of the literal datatypes
// the engine coerces lexical forms into at insert time.
type Kind uint8

const (
	// KindString marks a Value holding a plain or typed-as-text literal.
	KindString Kind = iota
	// KindInt64 marks a Value holding an xsd:integer-family literal.
	KindInt64
	// KindDouble marks a Value holding an xsd:double/float/decimal literal.
	KindDouble
	// KindBool marks a Value holding an xsd:boolean literal.
	KindBool
	// KindDate marks a Value holding an xsd:date/xsd:dateTime literal.
	KindDate
	// KindResource marks a Value holding a URI or blank node identifier.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return "string"
	}
}

// IsLiteral reports whether k is any of the literal kinds, as opposed to
// KindResource.
func (k Kind) IsLiteral() bool { return k != KindResource }

// Value is the tagged union the engine uses for every statement object,
// property default, and stored column value. Exactly one of Resource,
// Str, Int, Float, Bool or Time is meaningful, selected by Kind. A Value
// built from a raw lexical form (NewLiteral) starts out as KindString;
// Coerce reinterprets it against a property's declared datatype before it
// is staged into a TableOp, matching the original engine's insert-time
// type conversion.
type Value struct {
	Kind Kind

	Resource string // absolute URI or "_:blank" form, when Kind == KindResource
	Str      string // lexical form, when Kind == KindString
	Int      int64  // when Kind == KindInt64
	Float    float64
	Bool     bool
	Time     time.Time

	Datatype string // datatype URI the literal was asserted/coerced under
	Lang     string // BCP47 language tag, KindString only
}

// NewResource builds a resource-valued Value.
func NewResource(uri string) Value {
	return Value{Kind: KindResource, Resource: uri}
}

// NewLiteral builds an uncoerced, string-kinded literal Value. Callers that
// know the property's declared datatype ahead of time may set Datatype
// directly; the decomposer calls Coerce against the property's actual
// range before staging the value regardless.
func NewLiteral(lexical, datatype string) Value {
	return Value{Kind: KindString, Str: lexical, Datatype: datatype}
}

// IsBlank reports whether a resource Value refers to an unlabeled blank
// node rather than an absolute URI.
func (v Value) IsBlank() bool {
	return v.Kind == KindResource && len(v.Resource) > 2 && v.Resource[:2] == "_:"
}

// LexicalForm renders v back to the textual form its Kind was parsed from,
// regardless of which native field is populated. Used both for re-coercion
// of an already-typed Value and for staging full-text index text.
func (v Value) LexicalForm() string {
	switch v.Kind {
	case KindResource:
		return v.Resource
	case KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case KindDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindDate:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return v.Str
	}
}

// Equal performs the exact comparison the engine uses to detect duplicate
// inserts, matching deletes, and single-valued cardinality conflicts: same
// kind, same native value, same datatype/language tag for string literals.
// No normalization, epsilon tolerance, or type coercion is applied here —
// see DESIGN.md's Open Question decision on float equality.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindResource:
		return v.Resource == other.Resource
	case KindInt64:
		return v.Int == other.Int
	case KindDouble:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	case KindDate:
		return v.Time.Equal(other.Time)
	default:
		return v.Str == other.Str && v.Datatype == other.Datatype && v.Lang == other.Lang
	}
}

// Coerce reinterprets v's lexical form against rangeURI, the datatype a
// property declares as its range, returning a Value whose Kind and native
// field match that datatype. Resource-valued v is returned unchanged; an
// unrecognized or empty rangeURI coerces to KindString (xsd:string is the
// implicit default for untyped literals). Malformed lexical forms (an
// unparsable integer, boolean, or date) are reported as InvalidTypeError
// rather than silently falling back to string, so a bad value is rejected
// at the statement boundary instead of being stored mistyped.
func (v Value) Coerce(rangeURI string) (Value, error) {
	if v.Kind == KindResource {
		return v, nil
	}

	lexical := v.LexicalForm()
	out := v
	out.Datatype = rangeURI

	switch rangeURI {
	case "xsd:integer", "xsd:int", "xsd:long", "xsd:short":
		n, err := strconv.ParseInt(lexical, 10, 64)
		if err != nil {
			return Value{}, &InvalidTypeError{Want: rangeURI, Got: fmt.Sprintf("unparsable literal %q", lexical)}
		}
		out.Kind, out.Int = KindInt64, n
	case "xsd:double", "xsd:float", "xsd:decimal":
		f, err := strconv.ParseFloat(lexical, 64)
		if err != nil {
			return Value{}, &InvalidTypeError{Want: rangeURI, Got: fmt.Sprintf("unparsable literal %q", lexical)}
		}
		out.Kind, out.Float = KindDouble, f
	case "xsd:boolean":
		out.Kind, out.Bool = KindBool, lexical == "true" || lexical == "1"
	case "xsd:date", "xsd:dateTime":
		t, err := parseXSDDate(lexical)
		if err != nil {
			return Value{}, &InvalidTypeError{Want: rangeURI, Got: fmt.Sprintf("unparsable literal %q", lexical)}
		}
		out.Kind, out.Time = KindDate, t
	default:
		out.Kind, out.Str = KindString, lexical
	}
	return out, nil
}

// parseXSDDate accepts the two ISO-8601 shapes the ontology's date-ranged
// properties are expected to carry: a full RFC3339 timestamp, or a bare
// date. Both resolve to the Unix timestamp columnArg stores.
func parseXSDDate(lexical string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, lexical); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", lexical)
}
