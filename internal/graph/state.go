package graph

import (
	"slices"

	"smartdoc/internal/models"
)

// State is the record passed from node to node. Nodes receive a copy and
// return the state for the next node; they never share it.
type State struct {
	Question string               `json:"question"`
	Docs     []models.ScoredChunk `json:"docs"`
	Answer   string               `json:"answer"`
}

func (s State) clone() State {
	s.Docs = slices.Clone(s.Docs)
	return s
}
