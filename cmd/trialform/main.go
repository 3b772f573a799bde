package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/geocoder89/trialbooking/internal/formclient"
	"github.com/geocoder89/trialbooking/internal/formui"
)

func main() {
	cfg, err := formclient.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "trialform: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := formclient.New(cfg.APIURL, nil)
	runner := formui.New(client, os.Stdin, os.Stdout)

	err = runner.Run(ctx)
	switch {
	case err == nil, errors.Is(err, formui.ErrQuit), errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stdout, "\nBye!")
	default:
		fmt.Fprintf(os.Stderr, "trialform: %v\n", err)
		os.Exit(1)
	}
}
