package graph

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLegal_Table(t *testing.T) {
	tests := []struct {
		from, to MetaType
		rel      RelType
		want     bool
	}{
		{MetaLocation, MetaLocation, RelHas, true},
		{MetaLogical, MetaLogical, RelDependsOn, true},
		{MetaLogical, MetaPhysical, RelDependsOn, true},
		{MetaLogical, MetaPhysical, RelPartOf, true},
		{MetaRelation, MetaLogical, RelUses, true},
		{MetaRelation, MetaLogical, RelProvides, true},
		{MetaRelation, MetaLocation, RelResponsibleFor, true},
		{MetaRelation, MetaPhysical, RelOwns, true},
		{MetaRelation, MetaPhysical, RelProvides, true},
		{MetaPhysical, MetaPhysical, RelHas, true},
		{MetaPhysical, MetaPhysical, RelConnectedTo, true},
		{MetaPhysical, MetaLocation, RelLocatedIn, true},

		{MetaPhysical, MetaPhysical, RelUses, false},
		{MetaLogical, MetaLogical, RelPartOf, false},
		{MetaLocation, MetaPhysical, RelHas, false},
		{MetaPhysical, MetaLogical, RelDependsOn, false},
		{MetaRelation, MetaRelation, RelWorksFor, false},
		{MetaRelation, MetaLogical, RelOwns, false},
		{MetaPhysical, MetaLocation, RelHas, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.rel)+"_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CheckLegal(tt.from, tt.to, tt.rel))
		})
	}
}

func TestLegalTypes(t *testing.T) {
	assert.ElementsMatch(t, []RelType{RelHas, RelConnectedTo}, LegalTypes(MetaPhysical, MetaPhysical))
	assert.Nil(t, LegalTypes(MetaLocation, MetaPhysical))

	// The returned slice is a copy.
	got := LegalTypes(MetaLocation, MetaLocation)
	got[0] = RelOwns
	assert.True(t, CheckLegal(MetaLocation, MetaLocation, RelHas))
}

func TestLegalTable_Closed(t *testing.T) {
	total := 0
	for _, from := range MetaTypes {
		for _, to := range MetaTypes {
			total += len(LegalTypes(from, to))
		}
	}
	assert.Equal(t, 12, total, "legality table must list exactly twelve triples")
}

// TestCreateRelationship_LegalityProperties checks, over random triples,
// that creation succeeds exactly when the table allows the triple and that
// a rejected triple leaves no edge behind.
func TestCreateRelationship_LegalityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("create succeeds iff the triple is legal", prop.ForAll(
		func(fi, ti, ri int) bool {
			from, to, rel := MetaTypes[fi], MetaTypes[ti], RelTypes[ri]
			ctx := context.Background()
			g := New(NewMemStore())

			if _, err := g.CreateNode(ctx, "a", string(from), "Thing", 1); err != nil {
				return false
			}
			if _, err := g.CreateNode(ctx, "b", string(to), "Thing", 2); err != nil {
				return false
			}
			r, err := g.CreateRelationship(ctx, 1, 2, rel)
			if CheckLegal(from, to, rel) {
				if err != nil {
					return false
				}
				got, err := g.GetRelationship(ctx, r.ID)
				return err == nil && got.Type == rel && got.Start == 1 && got.End == 2
			}
			var illegal *NoRelationshipPossibleError
			if !asError(err, &illegal) {
				return false
			}
			stats, err := g.Stats(ctx)
			return err == nil && stats.RelationshipCount == 0 &&
				illegal.FromMeta == from && illegal.ToMeta == to && illegal.Type == rel &&
				illegal.FromHandle == 1 && illegal.ToHandle == 2
		},
		gen.IntRange(0, len(MetaTypes)-1),
		gen.IntRange(0, len(MetaTypes)-1),
		gen.IntRange(0, len(RelTypes)-1),
	))

	properties.TestingRun(t)
}

func TestCreateRelationship_EveryLegalTriple(t *testing.T) {
	ctx := context.Background()
	for _, from := range MetaTypes {
		for _, to := range MetaTypes {
			for _, rel := range LegalTypes(from, to) {
				g := New(NewMemStore())
				_, err := g.CreateNode(ctx, "a", string(from), "Thing", 10)
				require.NoError(t, err)
				_, err = g.CreateNode(ctx, "b", string(to), "Thing", 20)
				require.NoError(t, err)

				r, err := g.CreateRelationship(ctx, 10, 20, rel)
				require.NoError(t, err, "%s -%s-> %s", from, rel, to)

				// Re-fetching reports the same type and endpoints.
				got, err := g.GetRelationship(ctx, r.ID)
				require.NoError(t, err)
				assert.Equal(t, rel, got.Type)
				assert.Equal(t, int64(10), got.Start)
				assert.Equal(t, int64(20), got.End)
				assert.True(t, CheckLegal(from, to, got.Type))
			}
		}
	}
}
