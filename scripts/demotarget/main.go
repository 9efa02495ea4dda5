// Command demotarget serves the coffee-cart checkout application locally so
// workflows can be tried without a real target.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/torosent/vuload/internal/demotarget"
)

func main() {
	port := pflag.Int("port", 8080, "Listening port")
	confirmAfter := pflag.Int("confirm-after", 3, "Status polls before an order is confirmed")
	failureRate := pflag.Float64("failure-rate", 0, "Probability (0..1) that checkout fails with 503")
	latency := pflag.Duration("latency", 0, "Delay added to every response")
	pflag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *port <= 0 {
		logger.Fatal("port must be > 0")
	}
	if *failureRate < 0 || *failureRate > 1 {
		logger.Fatal("failure-rate must be between 0 and 1")
	}

	target := demotarget.New(demotarget.Options{
		ConfirmAfter: *confirmAfter,
		FailureRate:  *failureRate,
		Latency:      *latency,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           target.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Shutdown did not complete")
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":          srv.Addr,
		"confirm_after": *confirmAfter,
		"failure_rate":  *failureRate,
	}).Info("Coffee cart listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.WithField("carts", target.Carts()).Info("Coffee cart stopped")
}
