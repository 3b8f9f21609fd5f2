package main

import "github.com/HazyCorp/statesync/cmd/statesync/cmd"

func main() {
	cmd.Execute()
}
