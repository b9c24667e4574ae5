package main

import (
	"fmt"

	"github.com/webitel/rfc-communicator/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
