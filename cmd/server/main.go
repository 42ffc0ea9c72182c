package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/stafflink/engage-sdk/modules/engagement/infrastructure/persistence"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/modules/engagement/presentation/controllers"
	"github.com/stafflink/engage-sdk/modules/engagement/services"
	"github.com/stafflink/engage-sdk/pkg/application"
	"github.com/stafflink/engage-sdk/pkg/configuration"
	"github.com/stafflink/engage-sdk/pkg/eventbus"
	"github.com/stafflink/engage-sdk/pkg/metrics"
	"github.com/stafflink/engage-sdk/pkg/middleware"
	"github.com/stafflink/engage-sdk/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	bus := eventbus.NewEventPublisher(logger)
	bus.Subscribe(func(ev *services.ChangeRequestTransitionedEvent) {
		logger.WithFields(logrus.Fields{
			"request_id":  ev.RequestID,
			"contract_id": ev.ContractID,
			"action":      ev.Action,
			"from":        ev.From,
			"to":          ev.To,
		}).Info("change request transitioned")
	})
	bus.Subscribe(func(ev *services.ProposalFeedbackSubmittedEvent) {
		logger.WithFields(logrus.Fields{
			"proposal_id": ev.ProposalID,
			"reviewer_id": ev.ReviewerID,
		}).Info("proposal feedback submitted")
	})

	app := application.New()

	gate := permissions.NewGate(permissions.ReviewPolicy{
		ClientGatesReview: conf.ReviewParty == "client",
	})
	workflow := services.NewWorkflowService(
		persistence.NewChangeRequestRepository(),
		persistence.NewContractRepository(),
		gate,
		bus,
	)
	proposals := services.NewProposalService(persistence.NewProposalRepository(), gate, bus)

	app.RegisterMiddleware(
		middleware.ProvidePool(pool),
		middleware.RequestLogger(logger),
	)
	app.RegisterControllers(controllers.NewEngagementAPIController(workflow, proposals))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	srv := server.New(server.Options{
		Handler:      app.Router(),
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
	})
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := srv.Start(conf.SocketAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to start server: %v", err)
	}
}
