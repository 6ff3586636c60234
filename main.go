package main

import "minion/cmd"

func main() {
	cmd.Execute()
}
