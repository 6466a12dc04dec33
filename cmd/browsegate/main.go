// Package main is the entry point for browsegate.
package main

func main() {
	Execute()
}
