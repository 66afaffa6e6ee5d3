// Command assistantd runs the assistant orchestration core behind a small
// HTTP surface: POST /process for requests, /metrics for Prometheus,
// /healthz for liveness.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careloop-ai/assistant-core/bus"
	"github.com/careloop-ai/assistant-core/config"
	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/core/graph"
	"github.com/careloop-ai/assistant-core/core/router"
	"github.com/careloop-ai/assistant-core/handlers"
	"github.com/careloop-ai/assistant-core/llm"
	"github.com/careloop-ai/assistant-core/logging"
	"github.com/careloop-ai/assistant-core/observability"
	"github.com/careloop-ai/assistant-core/planstore"
	"github.com/careloop-ai/assistant-core/queue"
	"github.com/careloop-ai/assistant-core/schedule"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		otlp       = flag.String("otlp", "", "OTLP trace endpoint (empty disables tracing)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	if *otlp != "" {
		shutdown, err := observability.InitTracer("assistantd", *otlp)
		if err != nil {
			logger.Error("tracer_init_failed", "error", err.Error())
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	provider := llm.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model)

	store, err := planstore.OpenSQLite(cfg.PlanStorePath)
	if err != nil {
		logger.Error("plan_store_open_failed", "path", cfg.PlanStorePath, "error", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	agentBus := bus.NewAgentBus(logger, bus.WithMaxHistory(cfg.MaxMessageHistory))
	agentBus.AddMiddleware(bus.NewLoggingMiddleware(logger))

	jobQueue := queue.NewInMemoryJobQueue(smsSender(logger, agentBus), logger)
	defer jobQueue.Close()
	deadLetter := queue.NewInMemoryDeadLetter()

	scheduler := schedule.NewScheduler(jobQueue, store, deadLetter, logger, schedule.Config{
		DefaultTimezone: cfg.DefaultTimezone,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff(),
	})

	registry, err := agent.NewRegistry(handlers.NewAdviceHandler(provider, logger, cfg.ReplyTemperature))
	if err != nil {
		logger.Error("registry_init_failed", "error", err.Error())
		os.Exit(1)
	}
	mustRegister(registry, handlers.NewNotificationHandler(provider, scheduler, logger), logger)
	mustRegister(registry, handlers.NewAppointmentHandler(localCalendar{}, logger), logger)
	mustRegister(registry, handlers.NewReportHandler(emptyReportStore{}, provider, logger), logger)

	engine := collab.NewEngine(registry, collab.DefaultRules(), collab.NewSemaphore(cfg.CollabPermits), logger)
	classifier := router.NewClassifier(provider, logger, cfg.ClassificationTemperature)
	pipeline := graph.New(classifier, registry, engine, nil, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/process", processHandler(pipeline, logger))

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("server_started", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("server_stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

func mustRegister(registry *agent.Registry, h agent.Handler, logger agent.Logger) {
	if err := registry.Register(h); err != nil {
		logger.Error("handler_register_failed", "handler", h.Name(), "error", err.Error())
		os.Exit(1)
	}
}

// processResponse is the projection of a graph run returned to callers.
type processResponse struct {
	Reply     string                `json:"reply"`
	Actions   []agent.Action        `json:"actions,omitempty"`
	Followups []agent.Followup      `json:"followups,omitempty"`
	Route     string                `json:"route,omitempty"`
	Intent    string                `json:"intent,omitempty"`
	Timeline  []graph.TimelineEntry `json:"timeline,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func processHandler(pipeline *graph.Graph, logger agent.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var input agent.AgentInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if input.SessionID == "" {
			input.SessionID = "sess_" + uuid.New().String()[:16]
		}

		state := pipeline.Process(r.Context(), input)

		resp := processResponse{
			Route:    state.CurrentAgent,
			Intent:   state.Context.Intent,
			Timeline: state.Timeline,
			Error:    state.Err,
		}
		if state.FinalOutput != nil {
			resp.Reply = state.FinalOutput.Reply
			resp.Actions = state.FinalOutput.Actions
			resp.Followups = state.FinalOutput.Followups
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("response_encode_failed", "error", err.Error())
		}
	}
}

// smsSender is the delivery stub wired into the job queue. A production
// deployment swaps this for a real SMS gateway client; here delivery is a
// bus notification plus a log line.
func smsSender(logger agent.Logger, agentBus *bus.AgentBus) queue.Sender {
	return func(ctx context.Context, plan *schedule.NotificationPlan) error {
		_, err := agentBus.SendMessage(ctx, "notification", "sms_gateway", bus.MessageTypeNotification, map[string]any{
			"to":   plan.To,
			"body": plan.Body,
		})
		if err != nil {
			return err
		}
		logger.Info("sms_sent", "recipients", len(plan.To), "body_length", len(plan.Body))
		return nil
	}
}

// localCalendar is the in-process calendar used when no external calendar
// integration is configured.
type localCalendar struct{}

func (localCalendar) Book(ctx context.Context, accessToken string, req handlers.BookingRequest) (handlers.Appointment, error) {
	return handlers.Appointment{
		ID:       "apt_" + uuid.New().String()[:16],
		Title:    req.Title,
		StartsAt: req.StartsAt,
	}, nil
}

// emptyReportStore serves deployments without a report backend.
type emptyReportStore struct{}

func (emptyReportStore) ListReports(ctx context.Context, userID string) ([]handlers.Report, error) {
	return nil, nil
}
