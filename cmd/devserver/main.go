package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/baronglock/Site-legendas/internal/devserver"
	"github.com/baronglock/Site-legendas/internal/domain"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	addr := flag.String("addr", ":"+port, "listen address")
	token := flag.String("token", os.Getenv("LEGENDAS_TOKEN"), "accepted bearer token, empty accepts any")
	step := flag.Duration("step", devserver.DefaultStepEvery, "time a job spends in each status")
	failAt := flag.String("fail-at", "", "make jobs fail on entering this status")
	plan := flag.String("plan", string(domain.PlanFree), "plan reported by /auth/me")
	minutes := flag.Float64("minutes", 60, "monthly minute allowance")
	flag.Parse()

	server := devserver.New(devserver.Options{
		Token:        *token,
		StepEvery:    *step,
		FailAt:       domain.JobStatus(*failAt),
		Plan:         domain.Plan(*plan),
		MinutesLimit: *minutes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("dev backend listening on %s (step %s)", *addr, *step)
		if err := server.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
