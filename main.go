package main

import "github.com/kfreiman/feishuingest/cmd"

func main() {
	cmd.Execute()
}
