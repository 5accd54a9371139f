package main

import "github.com/marcus/rxsync/cmd"

// Version is injected at release time with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	cmd.Execute()
}
