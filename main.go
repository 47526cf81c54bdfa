package main

import (
	"github.com/malwarebo/orderbridge/cmd"
)

func main() {
	cmd.Execute()
}
