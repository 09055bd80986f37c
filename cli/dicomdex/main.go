package main

import (
	"os"

	"github.com/joho/godotenv"

	dicomdexcmder "github.com/dicomdex/dicomdex/cmd/dicomdex"
)

func main() {
	// A .env in the working directory feeds DICOMDEX_ variables into viper.
	_ = godotenv.Load()

	cmd := dicomdexcmder.NewDicomdexCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
