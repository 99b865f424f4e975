package main

import "github.com/markb/fhirsql/cmd"

func main() {
	cmd.Execute()
}
