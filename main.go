package main

import "github.com/MOE349/tenmil-backend-sub001/cmd"

func main() {
	cmd.Execute()
}
