package main

import (
	"log/slog"
	"net/http"
	"os"

	_ "net/http/pprof" // profiling

	"pointers/internal/pointers/cmd"
	"pointers/internal/pointers/log"
)

func main() {
	defer log.RecoverPanic("main", func() {
		slog.Error("Pointers terminated due to unhandled panic")
	})

	if os.Getenv("POINTERS_PROFILE") != "" {
		go func() {
			slog.Info("Serving pprof at localhost:6060")
			if httpErr := http.ListenAndServe("localhost:6060", nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	cmd.Execute()
}
