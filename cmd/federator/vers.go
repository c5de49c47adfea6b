// Package main starts the EIDA federator gateway.
package main

import "fmt"

const version = "1.0.0"

func printVer() {
	fmt.Printf("eida-federator %s (build %s at %s)\n", version, build, buildtime)
}
