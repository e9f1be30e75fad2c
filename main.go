package main

import (
	"github.com/BioHazard786/deskwarp/cmd"
	"github.com/BioHazard786/deskwarp/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
