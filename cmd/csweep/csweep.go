package main

import (
	"CraneSweep/internal/csweep"
)

func main() {
	csweep.ParseCmdArgs()
}
