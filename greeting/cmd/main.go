package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glossd/unsealer/common"
	"github.com/glossd/unsealer/greeting"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gocloud.dev/server"
	"gocloud.dev/server/requestlog"
)

func main() {
	addr := pflag.StringP("addr", "a", ":3000", "address to listen on")
	asHTML := pflag.Bool("html", false, "respond with an HTML page instead of plain text")
	verbosity := pflag.StringP("verbosity", "v", common.DefaultLogLevel, "log level (debug, info, warn, error)")
	pflag.Parse()

	if err := common.SetupLogging(*verbosity); err != nil {
		logrus.Fatal(err)
	}

	srv := newServer(greeting.LookupSecret(os.LookupEnv), *asHTML, os.Stdout)

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logrus.Info("Shutting down greeting server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Errorf("Server forced to shutdown: %s", err)
		}
	}()

	logrus.Infof("Server running at %s", *addr)
	if err := srv.ListenAndServe(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatalf("Server failed to listen: %s", err)
	}
	<-idle
}

// newServer serves the greeting and writes one NCSA line per request to accessLog.
func newServer(secret string, asHTML bool, accessLog io.Writer) *server.Server {
	return server.New(greeting.NewMux(secret, asHTML), &server.Options{
		RequestLogger: requestlog.NewNCSALogger(accessLog, func(err error) {
			logrus.Warnf("request log: %s", err)
		}),
	})
}
