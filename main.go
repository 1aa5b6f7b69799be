package main

import "github.com/deploymenttheory/go-rbm/cmd"

func main() {
	cmd.Execute()
}
