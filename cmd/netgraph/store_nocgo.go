//go:build !cgo

package main

import (
	"errors"

	"github.com/dusk-indust/netgraph/internal/graph"
)

func openKuzu(string) (graph.Store, error) {
	return nil, errors.New("kuzu backend requires a cgo build")
}
