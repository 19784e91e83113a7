package main

import "github.com/MeKo-Tech/ocrsam/cmd/ocrsam/cmd"

func main() {
	cmd.Execute()
}
