package graph

import "slices"

// metaPair keys the legality table.
type metaPair struct {
	from MetaType
	to   MetaType
}

// legalTable is the closed relationship ontology: which relationship types
// may run from a node of one meta-type to a node of another. A triple that
// is not listed is illegal.
var legalTable = map[metaPair][]RelType{
	{MetaLocation, MetaLocation}: {RelHas},
	{MetaLogical, MetaLogical}:   {RelDependsOn},
	{MetaLogical, MetaPhysical}:  {RelDependsOn, RelPartOf},
	{MetaRelation, MetaLogical}:  {RelUses, RelProvides},
	{MetaRelation, MetaLocation}: {RelResponsibleFor},
	{MetaRelation, MetaPhysical}: {RelOwns, RelProvides},
	{MetaPhysical, MetaPhysical}: {RelHas, RelConnectedTo},
	{MetaPhysical, MetaLocation}: {RelLocatedIn},
}

// CheckLegal reports whether a relationship of type t may be created from a
// node of meta-type from to a node of meta-type to.
func CheckLegal(from, to MetaType, t RelType) bool {
	return slices.Contains(legalTable[metaPair{from, to}], t)
}

// LegalTypes returns the relationship types allowed between the two
// meta-types, or nil when the pair admits none.
func LegalTypes(from, to MetaType) []RelType {
	return slices.Clone(legalTable[metaPair{from, to}])
}

// validRelType checks a relationship type before it is spliced into a query.
func validRelType(t RelType) error {
	if !labelPattern.MatchString(string(t)) {
		return &InvalidLabelError{Label: string(t), Reason: "relationship type must be an identifier"}
	}
	return nil
}
