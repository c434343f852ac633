package main

import "github.com/subjectboard/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
