package main

import "github.com/twiced-technology-gmbh/installwatch/cmd"

func main() {
	cmd.Execute()
}
