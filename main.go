package main

import "github.com/relloyd/retail-loader/cmd"

func main() {
	cmd.Execute()
}
