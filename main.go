// main.go
package main

import (
	"log"

	"typerace/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
