package main

import "github.com/edgeflare/restful/cmd/restful"

func main() {
	restful.Main()
}
