package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/pkg/basler"
)

func newDevicesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices in index order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			backend, err := basler.NewBackend(cfg.Backend, log.L())
			if err != nil {
				return err
			}
			devices, err := backend.Devices()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tMODEL\tSERIAL")
			for _, d := range devices {
				fmt.Fprintf(w, "%d\t%s\t%s\n", d.Index, d.ModelName, d.SerialNumber)
			}
			return w.Flush()
		},
	}
}
