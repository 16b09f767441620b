package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/qsmate/docstore/memstore"
	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/internal/config"
	"github.com/jrsteele09/qsmate/members"
	"github.com/jrsteele09/qsmate/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	for {
		err := run()
		if err == nil {
			break
		}
		if errors.Is(err, identity.ErrConfiguration) {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		log.Error().Err(err).Msg("Error running server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate, err := server.InitialiseGate(ctx, c)
	if err != nil {
		return err
	}
	// Runs after the server and guard have stopped: store first, then provider.
	defer gate.Close()

	docs := memstore.New()
	defer docs.Close()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, gate, members.NewService(docs)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gateCtx, stopGate := context.WithCancel(context.Background())
	defer stopGate()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gate.Run(gateCtx)
	})
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		<-gCtx.Done()
		err := shutdown(httpServer)
		stopGate()
		return err
	})

	return g.Wait()
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
