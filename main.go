package main

import (
	"os"

	"github.com/adminshell/adminshell/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
