package main

import (
	"github.com/asimaranov/telestory-backend/cmd/fleetd/cmd"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cmd.Execute()
}
