package main

import (
	"log"

	"github.com/navikt/telecoord/internal/config"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every scheduled appointment whose window has passed, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		coord := newCoordinator(store, config.GetSessionConfig())
		n, err := coord.Sweep(cmd.Context())
		log.Printf("Sweep closed %d appointment(s)", n)
		return err
	},
}
