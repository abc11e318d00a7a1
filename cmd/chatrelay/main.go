// File: cmd/chatrelay/main.go
package main

import "github.com/xkilldash9x/chatrelay/cmd"

func main() {
	cmd.Execute()
}
