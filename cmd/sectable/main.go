package main

import (
	"bufio"
	"fmt"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/bsm/sectable"
	"github.com/fatih/color"
	"go.uber.org/zap"
)

type options struct {
	Root  string `arg:"-r,--root,env:SECTABLE_ROOT" default:"/var/lib/sectable" help:"storage root directory"`
	Exec  string `arg:"-e,--exec" help:"execute a single command and exit"`
	Quiet bool   `arg:"-q,--quiet" help:"suppress structured logging"`
}

func (options) Version() string { return "sectable " + version }

func main() {
	var opts options
	arg.MustParse(&opts)

	logger := zap.NewNop()
	if !opts.Quiet {
		var err error
		if logger, err = zap.NewProduction(); err != nil {
			fmt.Fprintf(os.Stderr, "sectable: init logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	store, err := sectable.Open(opts.Root)
	if err != nil {
		logger.Sugar().Fatalw("cannot open storage root", "root", opts.Root, "err", err)
	}

	console := NewConsole(store, os.Stdout, logger.Sugar())
	if opts.Exec != "" {
		console.Exec(opts.Exec)
		return
	}

	interactive := isTerminal(os.Stdin)
	if interactive {
		fmt.Printf("Welcome to sectable %s\n", version)
		fmt.Printf("Use help for a command list and quit for leaving this session\n\n")
	}

	prompt := color.New(color.FgCyan, color.Bold).SprintFunc()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	for {
		if interactive {
			fmt.Print(prompt("sectable> "))
		}
		if !scanner.Scan() {
			break
		}
		if !console.Exec(scanner.Text()) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Sugar().Warnw("cannot read stdin", "err", err)
	}
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
