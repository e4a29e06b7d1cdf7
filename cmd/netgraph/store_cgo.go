//go:build cgo

package main

import "github.com/dusk-indust/netgraph/internal/graph"

func openKuzu(path string) (graph.Store, error) {
	s, err := graph.OpenKuzu(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
