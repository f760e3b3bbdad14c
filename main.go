package main

import "github.com/kozaktomas/face-service/cmd"

func main() {
	cmd.Execute()
}
