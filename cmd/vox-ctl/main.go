package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/spf13/pflag"

	"voxwork/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", "", "Worker control socket")
	worker := cli.StringP("worker", "w", "stt", "Worker name, used when --socket is empty")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-s socket | -w worker] <command> [command...]\n", filepath.Base(os.Args[0]))
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	path := *socket
	if path == "" {
		path = ipc.SocketPath(*worker)
	}

	// each argument is one command line
	if err := ipc.Send(path, cli.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, "worker not running:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
