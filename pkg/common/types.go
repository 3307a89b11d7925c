package common

import "strings"

// EntityType classifies a resolved entity. The built-in set mirrors the
// technical patterns the default extraction rules target; deployments may
// register additional custom types through configuration, which are carried
// as-is with TypeCustom semantics.
type EntityType string

const (
	EntityFunction EntityType = "function"
	EntityClass    EntityType = "class"
	EntityConstant EntityType = "constant"
	EntityURL      EntityType = "url"
	EntityCustom   EntityType = "custom"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityFunction, EntityClass, EntityConstant, EntityURL, EntityCustom:
		return true
	}
	return false
}

// RelationshipType classifies a graph edge. The enumeration is closed;
// RelatedTo is the generic fallback when no more specific type applies.
type RelationshipType string

const (
	RelContains   RelationshipType = "contains"
	RelReferences RelationshipType = "references"
	RelDependsOn  RelationshipType = "depends_on"
	RelDescribes  RelationshipType = "describes"
	RelRelatedTo  RelationshipType = "related_to"
)

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelContains, RelReferences, RelDependsOn, RelDescribes, RelRelatedTo:
		return true
	}
	return false
}

// CanonicalName normalizes an entity name for resolution: lowercased,
// whitespace collapsed. Two mentions with equal canonical names refer to
// the same concept.
func CanonicalName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
