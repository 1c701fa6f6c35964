// Command userapi runs the user management HTTP API.
package main

import (
	"log"

	"github.com/patric-chuzhbe/userapi/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	a, err := app.New()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run()
}
