package entities

import "strconv"

// Field is one column of the annotation output. The set is closed.
type Field int

const (
	FieldText Field = iota
	FieldLemma
	FieldPOS
	FieldTag
	FieldDep
	FieldEntType
	FieldIsAlpha
	FieldIsStop
	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldText:    "text",
	FieldLemma:   "lemma",
	FieldPOS:     "pos",
	FieldTag:     "tag",
	FieldDep:     "dep",
	FieldEntType: "ent_type",
	FieldIsAlpha: "is_alpha",
	FieldIsStop:  "is_stop",
}

// DefaultFields is used when a request names no fields.
var DefaultFields = []Field{FieldText, FieldLemma, FieldPOS, FieldTag, FieldDep}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "Field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// ParseField maps a wire name to its Field.
func ParseField(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// SupportedFields returns every field name in canonical order.
func SupportedFields() []string {
	names := make([]string, len(fieldNames))
	copy(names, fieldNames[:])
	return names
}

// FieldNames renders fields back to their wire names.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return names
}

// Extract returns the token's value for f. Flags render as "True"/"False".
func (f Field) Extract(tok Token) string {
	switch f {
	case FieldText:
		return tok.Text
	case FieldLemma:
		return tok.Lemma
	case FieldPOS:
		return tok.POS
	case FieldTag:
		return tok.Tag
	case FieldDep:
		return tok.Dep
	case FieldEntType:
		return tok.EntType
	case FieldIsAlpha:
		return formatFlag(tok.IsAlpha)
	case FieldIsStop:
		return formatFlag(tok.IsStop)
	default:
		panic("entities: unhandled field " + f.String())
	}
}

func formatFlag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
