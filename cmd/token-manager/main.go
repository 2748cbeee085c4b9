package main

import (
	"os"
	"os/signal"
	"syscall"

	goflags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/app"
)

func parse(config interface{}) {
	errWrongCommand := 2

	_, err := goflags.Parse(config)
	if err != nil {
		if err, ok := err.(*goflags.Error); ok && err.Type == goflags.ErrHelp {
			os.Exit(errWrongCommand)
		}
		logrus.Fatalf("Error during flags parsing: %v.", err)
	}
}

func waitForShutdown(f func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	s, ok := <-c
	if !ok {
		return
	}
	logrus.Infof("Got signal: %v", s)

	f()
}

func main() {
	var config app.Config
	parse(&config)

	a := app.New()
	if err := a.Start(config); err != nil {
		logrus.WithError(err).Error("Failed to start token manager")
		os.Exit(1)
	}

	waitForShutdown(a.Close)
}
