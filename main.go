package main

import "github.com/reconward/reconward/cmd"

func main() {
	cmd.Execute()
}
