package main

import "github.com/kozaktomas/photo-cluster/cmd"

func main() {
	cmd.Execute()
}
