package main

import (
	"os"

	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "parleyapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
