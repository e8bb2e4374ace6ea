package main

import "github.com/MrLituation/BlockBox/cmd"

func main() {
	cmd.Execute()
}
