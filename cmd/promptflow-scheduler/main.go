package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/repo"
	"github.com/dkorolev/promptflow/internal/scheduler"
)

const schedLockKey int64 = 424242

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		log.Fatalf("[scheduler] db connect: %v", err)
	}
	defer pool.Close()
	log.Printf("[scheduler] db connected")

	// RabbitMQ: опционален — без него executions подхватит polling runner'а
	var publisher *mq.Publisher
	mqConn, err := mq.Connect(os.Getenv("RABBITMQ_URL"), nil)
	if err != nil {
		log.Printf("[scheduler] RabbitMQ not available, executions will be picked up by polling: %v", err)
	} else {
		defer mqConn.Close()
		log.Printf("[scheduler] RabbitMQ connected")

		if err := mq.DeclareTopology(mqConn); err != nil {
			log.Printf("[scheduler] topology declare err: %v", err)
		}
		publisher = mq.NewPublisher(mqConn)
	}

	sched := scheduler.New(scheduler.Config{
		Schedules:  repo.NewScheduleRepo(pool),
		Executions: repo.NewExecutionRepo(pool),
		Flows:      repo.NewFlowRepo(pool),
		Publisher:  publisher,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// scheduler loop
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				var ok bool
				if !hasLock {
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						log.Printf("[scheduler] lock err: %v", err)
						continue
					}
					hasLock = ok
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				// лидер выполняет логику тика
				if err := sched.Tick(ctx); err != nil {
					log.Printf("[scheduler] tick err: %v", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// serve
	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}
	log.Printf("[scheduler] listening on %s", port)
	if err := http.ListenAndServe(port, mux); err != nil {
		log.Printf("[scheduler] http error: %v", err)
		cancel()
	}
}
