package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"recall/models"
)

// 給atlas當external schema loader用，輸出所有model的DDL
func main() {
	stmts, err := gormschema.New("postgres").Load(
		&models.Voter{},
		&models.User{},
		&models.VoterProfile{},
		&models.Bill{},
		&models.Notification{},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
	io.WriteString(os.Stdout, stmts)
}
