/*
Copyright © 2025 SeqLab <dev@seqlab.io>
*/
package main

import "github.com/seqlab-io/baktarun/cmd"

func main() {
	cmd.Execute()
}
