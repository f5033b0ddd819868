package main

import "github.com/envsync/envsync/cmd"

func main() {
	cmd.Execute()
}
