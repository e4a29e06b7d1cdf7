package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dusk-indust/netgraph/internal/graph"
)

// SubgraphExport is the top-level JSON export structure.
type SubgraphExport struct {
	ExportedAt string `json:"exportedAt"`
	*Subgraph
}

// ExportJSON returns the subgraph around handle as indented JSON.
func ExportJSON(ctx context.Context, g *graph.Graph, handle int64, depth int) ([]byte, error) {
	sg, err := Collect(ctx, g, handle, depth)
	if err != nil {
		return nil, err
	}
	out := SubgraphExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Subgraph:   sg,
	}
	return json.MarshalIndent(out, "", "  ")
}
