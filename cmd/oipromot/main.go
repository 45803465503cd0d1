package main

import "github.com/ZhenchongLi/oipromot/internal/cli"

func main() {
	cli.Execute()
}
