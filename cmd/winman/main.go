package main

import "github.com/bryanchriswhite/winman/cmd/winman/commands"

func main() {
	commands.Execute()
}
