package main

import "wadio/cmd"

func main() {
	cmd.Execute()
}
