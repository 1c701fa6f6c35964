package main

import (
	"log"
	"os"
)

func main() {
	defer log.Println("deferred")

	if len(os.Args) > 5 {
		os.Exit(2) // want "avoid using os.Exit in main.main"
	}

	func() {
		os.Exit(1) // want "avoid using os.Exit in main.main"
	}()
}

func helper() {
	os.Exit(1)
}
