package model

// Source identifies the upstream provider that supplied a field value.
type Source string

const (
	// SourceUKVD is the vehicle specification and history provider.
	SourceUKVD Source = "ukvd"
	// SourceCapHPI is the valuation provider.
	SourceCapHPI Source = "caphpi"
	// SourceDerived marks values produced by a named business rule
	// (e.g. zero CO2 and zero tax for electric vehicles) rather than
	// returned by a provider.
	SourceDerived Source = "derived"
)

// Field pairs a value with the source that supplied it. Absent fields
// are represented as nil *Field pointers on the enclosing record, so a
// present field always carries exactly one source tag.
type Field[T any] struct {
	Value  T      `json:"value"`
	Source Source `json:"source"`
}

// Tag wraps a value with its source tag.
func Tag[T any](v T, s Source) *Field[T] {
	return &Field[T]{Value: v, Source: s}
}
