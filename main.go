package main

import "github.com/edgeflare/pgview/cmd/pgview"

func main() {
	pgview.Main()
}
