package main

import "github.com/vietddude/metalsync/internal/cli"

func main() {
	cli.Execute()
}
