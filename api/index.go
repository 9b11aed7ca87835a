// Package api is the serverless entrypoint. The runtime is built once per
// instance and reused across invocations.
package api

import (
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"address-verifier/app"
)

var (
	once    sync.Once
	runtime *app.Runtime
	initErr error
)

func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runtime, initErr = app.Build(app.Options{
			LoadDotEnv:    false,
			RunMigrations: true,
		})
	})

	if initErr != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}
