package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/ticklog"
)

func historyCmd() *cobra.Command {
	var (
		dir    string
		run    string
		from   uint64
		to     uint64
		asJSON bool
		graph  string
	)

	cmd := &cobra.Command{
		Use:   "history [archive.jsonl.zst...]",
		Short: "Print summaries from tick-log archives",
		RunE: func(_ *cobra.Command, args []string) error {
			if graph != "" {
				g, err := ticklog.ReadGraph(graph)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			}

			files := args
			if len(files) == 0 {
				found, err := ticklog.Files(dir, run)
				if err != nil {
					return err
				}
				files = found
			}
			if len(files) == 0 {
				return fmt.Errorf("no tick-log archives found in %s", dir)
			}

			enc := json.NewEncoder(os.Stdout)
			for _, path := range files {
				if !asJSON {
					size := "?"
					if st, err := os.Stat(path); err == nil {
						size = humanize.Bytes(uint64(st.Size()))
					}
					fmt.Printf("# %s (%s)\n", path, size)
				}

				summaries, err := ticklog.ReadAll(path)
				if err != nil {
					return err
				}
				for _, s := range summaries {
					if s.Tick < from || (to > 0 && s.Tick > to) {
						continue
					}
					if asJSON {
						if err := enc.Encode(s); err != nil {
							return err
						}
						continue
					}
					printSummaryLine(s)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/ticks", "directory searched when no files are given")
	cmd.Flags().StringVar(&run, "run", "", "only archives for this run id")
	cmd.Flags().Uint64Var(&from, "from", 0, "first tick to print")
	cmd.Flags().Uint64Var(&to, "to", 0, "last tick to print (0: no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print summaries as JSON lines")
	cmd.Flags().StringVar(&graph, "graph", "", "print a compressed graph snapshot instead")
	return cmd
}
