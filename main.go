package main

import "github.com/quickAIautomation/quickvetpro/cmd"

func main() {
	cmd.Execute()
}
