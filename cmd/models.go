package cmd

import (
	"fmt"

	"anthropic-manifold/internal/anthropic"
	"anthropic-manifold/internal/pipeline"
)

// listModels prints the static model enumeration without touching the
// network, mirroring what GET /v1/models announces.
func listModels(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("models command takes no arguments")
	}

	manifold := anthropic.New(pipeline.Valves{}, nil)
	for _, model := range manifold.Models() {
		fmt.Printf("%-28s %s\n", model.ID, model.Name)
	}
	return nil
}
