package main

import "github.com/KaramelBytes/vizloom-cli/cmd"

func main() {
	cmd.Execute()
}
