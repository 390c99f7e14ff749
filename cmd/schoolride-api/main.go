// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"schoolride/internal/config"
	httptransport "schoolride/internal/http"
	"schoolride/internal/infra"
	"schoolride/internal/logger"
	"schoolride/internal/maps"
	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/child"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/matching"
	"schoolride/internal/modules/notification"
	"schoolride/internal/modules/payment"
	"schoolride/internal/modules/pricing"
	"schoolride/internal/modules/profile"
	"schoolride/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("SCHOOLRIDE_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		log.Fatal("firebase init", zap.Error(err))
	}
	defer func() { _ = fb.Close() }()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey)
	if err != nil {
		log.Fatal("maps init", zap.Error(err))
	}
	mapsOpts := maps.Options{Region: cfg.Maps.Region, Language: cfg.Maps.Language}
	routeSvc := maps.NewRouteService(mapsClient, mapsOpts)
	placesSvc := maps.NewPlacesService(mapsClient, maps.NewCache(redisClient, cfg.Redis.CacheTTL), mapsOpts, log)

	profileSvc := profile.NewService(profile.NewStore(dbPool))

	notificationSvc := notification.NewService(
		notification.NewStore(dbPool),
		notification.NewFCMSender(fb.Messaging),
		profileSvc,
		log,
	)
	var dispatcher notification.Dispatcher = notification.NewDirectDispatcher(notificationSvc)
	var worker *notification.Worker
	if cfg.AMQP.URL != "" {
		mq, err := infra.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Fatal("amqp init", zap.Error(err))
		}
		defer func() { _ = mq.Close() }()
		dispatcher = notification.NewAMQPDispatcher(mq.Channel, mq.Queue)
		worker = notification.NewWorker(mq.Consume, mq.Queue, notificationSvc, log)
	}

	matchingStore := matching.NewStore(redisClient)
	driverSvc := driver.NewService(driver.NewStore(dbPool), matchingStore, profileSvc, log)
	childSvc := child.NewService(child.NewStore(dbPool))
	matchingSvc := matching.NewService(childSvc, driverSvc, matchingStore, cfg.Matching, log)
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Pricing, log)

	bookingSvc := booking.NewService(booking.NewStore(dbPool), booking.Deps{
		Children: childSvc,
		Drivers:  driverSvc,
		Pricer:   pricingSvc,
		Router:   routeSvc,
		Notifier: dispatcher,
		Log:      log,
	})
	gateway := payment.NewPayHereClient(cfg.Payment.GatewayURL, cfg.Payment.MerchantID, cfg.Payment.MerchantKey, cfg.Payment.GatewayLimit)
	paymentSvc := payment.NewService(payment.NewStore(dbPool), gateway, bookingSvc, dispatcher, cfg.Payment, log)
	bookingSvc.SetExtensionBiller(paymentSvc)

	var publisher location.Publisher
	if fb.Database != nil {
		publisher = location.NewRTDBPublisher(fb.Database)
	}
	locationSvc := location.NewService(
		location.NewStore(dbPool, redisClient),
		publisher,
		location.NewTracker(cfg.Location.SnapshotInterval),
		log,
	)
	rideSvc := ride.NewService(ride.NewStore(fb.Firestore), ride.Deps{
		Bookings: bookingSvc,
		Admins:   profileSvc,
		Notifier: dispatcher,
		Tracker:  locationSvc,
		Log:      log,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		paymentSvc.RunBalanceDueMonitor(ctx)
	}()
	if worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil {
				log.Error("notification worker stopped", zap.Error(err))
			}
		}()
	}

	server := httptransport.NewServer(httptransport.ServerDeps{
		Config:        cfg,
		Verifier:      fb.Verifier(),
		Claims:        fb,
		Profiles:      profileSvc,
		Children:      childSvc,
		Drivers:       driverSvc,
		Matching:      matchingSvc,
		Bookings:      bookingSvc,
		Payments:      paymentSvc,
		Rides:         rideSvc,
		Location:      locationSvc,
		Notifications: notificationSvc,
		Notifier:      dispatcher,
		Places:        placesSvc,
		Autocomplete:  maps.NewAutocompleter(placesSvc),
		Log:           log,
	})
	if err := server.Run(ctx); err != nil {
		log.Error("http server", zap.Error(err))
	}
	stop()
	wg.Wait()
}
