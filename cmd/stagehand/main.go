package main

import (
	"os"

	"horse.fit/stagehand/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
