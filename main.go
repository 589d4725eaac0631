package main

import "github.com/iksnae/kbchat/cmd"

func main() {
	cmd.Execute()
}
