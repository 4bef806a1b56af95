package main

import "github.com/somebottle/cooperation-daemon/cmd"

func main() {
	cmd.Execute()
}
