package main

import "github.com/dbsmedya/graphwalk/cmd/graphwalk/cmd"

func main() {
	cmd.Execute()
}
