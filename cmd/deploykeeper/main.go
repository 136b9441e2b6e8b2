package main

import "github.com/oshokin/deploykeeper/cmd/deploykeeper/cmd"

func main() {
	cmd.Execute()
}
