package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"backplane-go/services/backplane"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/resource"
)

func newDescribeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Attach and initialise, then print the output table, resources and interfaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, bp, err := root.open(log)
			if err != nil {
				return err
			}
			defer bp.Close()
			describe(cmd.OutOrStdout(), bp)
			return nil
		},
	}
}

func describe(out io.Writer, bp *backplane.Backplane) {
	sys := bp.Sys
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "OUTPUT TABLE (%d provided, %d used)\n", sys.ProvidedGPIOs(), sys.UsedGPIOs())
	fmt.Fprintln(w, "INDEX\tKIND\tID\tPWM\tINITIAL")
	sys.Table().Each(func(i int, d gpiotable.Descriptor) {
		kind := "native"
		if d.Indirect() {
			kind = "indirect"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%t\t%t\n", i, kind, d.ID(), d.Caps().PWM, d.Initial())
	})

	fmt.Fprintf(w, "\nRESOURCES (%d)\n", sys.Pool().Len())
	fmt.Fprintln(w, "INDEX\tTYPE\tUSAGES\tMAX")
	sys.Pool().Each(func(i int, r resource.Resource) {
		max := "unbounded"
		if r.MaxUsages() > 0 {
			max = fmt.Sprint(r.MaxUsages())
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, r.Type(), r.Usages(), max)
	})

	fmt.Fprintf(w, "\nMODULES (%d)\n", sys.Len())
	fmt.Fprintln(w, "SLOT\tNAME\tKIND\tSTAGE\tGPIO START\tDEGRADED")
	for slot := range sys.Len() {
		st, _ := bp.Status(slot)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\n", slot, st.Name, st.Kind, st.Stage, st.GPIOStart, st.Degraded)
	}

	fmt.Fprintln(w, "\nINTERFACES")
	fmt.Fprintln(w, "MODULE\tNAME\tKIND\tVALID\tQ")
	for slot, m := range sys.Modules() {
		for _, i := range m.Interfaces() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", bp.Name(slot), i.Name(), i.Kind(), i.Valid(), i.Q())
		}
	}
	w.Flush()
}
