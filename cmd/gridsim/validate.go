package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/scenario"
)

func validateCmd() *cobra.Command {
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate [scenario-file...]",
		Short: "Check scenario files against the schema and build them",
		RunE: func(_ *cobra.Command, args []string) error {
			if printSchema {
				_, err := os.Stdout.Write(scenario.Schema())
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("no scenario files given")
			}

			failed := 0
			for _, path := range args {
				if err := validateOne(path); err != nil {
					fmt.Printf("FAIL %s\n     %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSchema, "schema", false, "print the scenario JSON Schema and exit")
	return cmd
}

func validateOne(path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	w, err := sc.Build(engine.DefaultOptions())
	if err != nil {
		return err
	}
	sum := w.StatusSummary()
	fmt.Printf("OK   %s (%s): %d buildings, %d edges, %d layers, %d events\n",
		path, sc.Name, sum.BuildingsTotal, sum.EdgesTotal, len(w.Layers()), len(sc.Events))
	return nil
}
