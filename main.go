package main

import "briefly-server/cmd"

func main() {
	cmd.Execute()
}
