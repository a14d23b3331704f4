/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/ssargent/chunktree/cmd/chunktree/cmd"
)

func main() {
	cmd.Execute()
}
