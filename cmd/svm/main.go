package main

import (
	"log"
	"os"
	"runtime"
)

func init() {
	// GLFW and GL calls must all originate from the thread that created
	// the window.
	runtime.LockOSThread()
}

func main() {
	config := parseArgs()

	if err := NewApp(config).Run(); err != nil {
		log.Printf("%s: %v", AppName, err)
		os.Exit(1)
	}
}
