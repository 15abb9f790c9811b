// Command basler drives a Basler camera through the go-basler adapter.
//
// Usage:
//
//	basler live --pixel-format BayerRG8 --exposure 16700 --fps 21
//	basler grab -n 10 -o frames/
//	basler devices
//	basler serve -c basler.toml
package main

import (
	"os"

	"github.com/teslashibe/go-basler/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
