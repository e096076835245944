// main.go
package main

import (
	"log"

	"smarttrain/cmd"
	_ "smarttrain/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
