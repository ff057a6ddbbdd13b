// Package main implements the db-failover orchestrator: it watches a
// multi-region database cluster, promotes a secondary when the primary
// fails, and propagates the new primary to every consumer.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/Shavakan/db-failover/pkg/admin"
	"github.com/Shavakan/db-failover/pkg/audit"
	"github.com/Shavakan/db-failover/pkg/circuit"
	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/config"
	"github.com/Shavakan/db-failover/pkg/controller"
	"github.com/Shavakan/db-failover/pkg/coordinator"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/events"
	"github.com/Shavakan/db-failover/pkg/housekeeping"
	"github.com/Shavakan/db-failover/pkg/logging"
	"github.com/Shavakan/db-failover/pkg/metrics"
	"github.com/Shavakan/db-failover/pkg/notify"
	"github.com/Shavakan/db-failover/pkg/probe"
	"github.com/Shavakan/db-failover/pkg/promote"
	"github.com/Shavakan/db-failover/pkg/propagate"
	"github.com/Shavakan/db-failover/pkg/secrets"
	"github.com/Shavakan/db-failover/pkg/selector"
	"github.com/Shavakan/db-failover/pkg/tracing"
	"github.com/Shavakan/db-failover/pkg/validate"
)

type stdLogger struct{}

func (l *stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (l *stdLogger) Println(v ...interface{}) {
	log.Println(v...)
}

func loadTopology(ctx context.Context, awsCfg aws.Config, cfg *config.Config) (cluster.Directory, []cluster.Region) {
	var directory cluster.Directory
	if cfg.TopologySSMParam != "" {
		directory = cluster.NewSSMDirectory(awsCfg, cfg.TopologySSMParam)
		log.Printf("Loading topology from SSM parameter %s", cfg.TopologySSMParam)
	} else {
		directory = cluster.NewFileDirectory(cfg.TopologyFile)
		log.Printf("Loading topology from %s", cfg.TopologyFile)
	}

	regions, err := directory.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load topology: %v", err)
	}
	return directory, regions
}

func initMetrics(cfg *config.Config, awsCfg aws.Config) (metrics.Publisher, *metrics.PrometheusPublisher) {
	var publishers []metrics.Publisher
	var promPublisher *metrics.PrometheusPublisher

	for _, backend := range strings.Split(cfg.MetricsBackend, ",") {
		switch strings.TrimSpace(backend) {
		case "prometheus":
			promPublisher = metrics.NewPrometheusPublisher(metrics.PrometheusConfig{})
			publishers = append(publishers, promPublisher)
		case "cloudwatch":
			publishers = append(publishers, metrics.NewCloudWatchPublisherWithNamespace(awsCfg, cfg.CloudWatchNamespace))
		case "datadog":
			ddPublisher, err := metrics.NewDatadogPublisher(metrics.DatadogConfig{Address: cfg.StatsdAddr})
			if err != nil {
				log.Fatalf("Failed to create Datadog publisher: %v", err)
			}
			publishers = append(publishers, ddPublisher)
		case "":
		default:
			log.Fatalf("Unknown metrics backend: %s", backend)
		}
	}

	switch len(publishers) {
	case 0:
		return metrics.NoopPublisher{}, nil
	case 1:
		return publishers[0], promPublisher
	default:
		return metrics.NewMultiPublisher(publishers...), promPublisher
	}
}

func initCoordinator(awsCfg aws.Config, cfg *config.Config, publisher metrics.Publisher) coordinator.Coordinator {
	logger := &stdLogger{}
	if !cfg.CoordinatorEnabled || cfg.InstanceID == "" || cfg.LocksTableName == "" {
		log.Println("Distributed coordinator disabled (no-op coordinator)")
		return coordinator.NewNoOpCoordinator(logger)
	}

	coordCfg := coordinator.DefaultConfig(cfg.InstanceID)
	coordCfg.LockTableName = cfg.LocksTableName
	coord := coordinator.NewDynamoDBCoordinator(coordCfg, dynamodb.NewFromConfig(awsCfg), logger)
	coord.OnLeadershipChange(func(leading bool) {
		if err := publisher.PublishLeadership(context.Background(), leading); err != nil {
			log.Printf("Failed to publish leadership metric: %v", err)
		}
	})
	log.Printf("Distributed coordinator enabled: instance_id=%s, table=%s", cfg.InstanceID, cfg.LocksTableName)
	return coord
}

func initAnnouncers(awsCfg aws.Config, cfg *config.Config) *propagate.Fanout {
	var announcers []propagate.Announcer

	if cfg.AppConfigRedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.AppConfigRedisAddr,
			Password: cfg.AppConfigRedisPassword,
			DB:       cfg.AppConfigRedisDB,
		})
		store := propagate.NewAppConfigStoreWithClient(client,
			cfg.AppConfigKeyPrefix+"primary",
			cfg.AppConfigKeyPrefix+"primary:updates")
		announcers = append(announcers, store)
		log.Printf("App-config propagation enabled via %s", cfg.AppConfigRedisAddr)
	}

	if cfg.PrimaryRecordName != "" {
		dns := propagate.NewDNSAnnouncer(awsCfg, cfg.HostedZoneID, cfg.PrimaryRecordName,
			time.Duration(cfg.DNSRecordTTL)*time.Second)
		announcers = append(announcers, dns)
		log.Printf("DNS propagation enabled for %s", cfg.PrimaryRecordName)
	}

	if len(announcers) == 0 {
		log.Fatalf("No propagation channels configured; set DB_FAILOVER_REDIS_ADDR or DB_FAILOVER_PRIMARY_RECORD")
	}
	return propagate.NewFanout(announcers...)
}

func initNotifier(awsCfg aws.Config, cfg *config.Config) *notify.Multi {
	var notifiers []notify.Notifier
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, 0))
		log.Println("Webhook notifications enabled")
	}
	if cfg.PagerSNSTopic != "" {
		notifiers = append(notifiers, notify.NewPagerNotifier(awsCfg, cfg.PagerSNSTopic))
		log.Printf("Pager notifications enabled via %s", cfg.PagerSNSTopic)
	}
	return notify.NewMulti(notifiers...)
}

func initAudit(awsCfg aws.Config, cfg *config.Config) (*audit.Store, *audit.Archiver) {
	if cfg.AuditTableName == "" {
		log.Println("Audit trail disabled (no table configured)")
		return nil, nil
	}

	store := audit.NewStore(awsCfg, cfg.AuditTableName)
	log.Printf("Audit trail enabled with table: %s", cfg.AuditTableName)

	if cfg.ArchiveBucket == "" {
		return store, nil
	}
	log.Printf("Audit archival enabled to bucket: %s", cfg.ArchiveBucket)
	return store, audit.NewArchiver(store, awsCfg, cfg.ArchiveBucket)
}

func initAdminServer(cfg *config.Config, ctrl *controller.Controller, auditStore *audit.Store, breaker *circuit.Breaker, promPublisher *metrics.PrometheusPublisher) *http.Server {
	mux := http.NewServeMux()

	var auditReader admin.AuditReader
	if auditStore != nil {
		auditReader = auditStore
	}
	var circuitAdmin admin.CircuitAdmin
	if breaker != nil {
		circuitAdmin = breaker
	}
	admin.NewHandler(ctrl, auditReader, circuitAdmin, cfg.AdminToken).RegisterRoutes(mux)

	if promPublisher != nil {
		mux.Handle("GET /metrics", promPublisher.Handler())
	}

	return &http.Server{
		Addr:              cfg.AdminListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Failed to load AWS configuration: %v", err)
	}

	tracerProvider, err := tracing.Init(ctx, tracing.LoadConfig())
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Tracer shutdown failed: %v", err)
		}
	}()

	secretsStore, err := secrets.NewStore(ctx, secrets.LoadConfig(), awsCfg)
	if err != nil {
		log.Fatalf("Failed to create secrets store: %v", err)
	}

	directory, regions := loadTopology(ctx, awsCfg, cfg)
	initialState, err := cluster.NewState(regions, 0)
	if err != nil {
		log.Fatalf("Invalid cluster topology: %v", err)
	}
	log.Printf("Cluster loaded: %d regions, primary %s", len(regions), initialState.PrimaryID())

	publisher, promPublisher := initMetrics(cfg, awsCfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Metrics publisher close failed: %v", err)
		}
	}()

	coord := initCoordinator(awsCfg, cfg, publisher)
	if err := coord.Start(ctx); err != nil {
		log.Fatalf("Failed to start coordinator: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := coord.Stop(stopCtx); err != nil {
			log.Printf("Coordinator stop failed: %v", err)
		}
	}()

	var breaker *circuit.Breaker
	if cfg.CircuitBreakerTable != "" {
		breaker = circuit.NewBreaker(awsCfg, cfg.CircuitBreakerTable, "default")
		log.Printf("Circuit breaker enabled with table: %s", cfg.CircuitBreakerTable)
	}

	auditStore, archiver := initAudit(awsCfg, cfg)
	pool := dbadmin.NewPostgresPool(secretsStore)

	deps := controller.Deps{
		Prober:    probe.NewHealthProber(pool, cfg.ProbeTimeout),
		Lag:       probe.NewLagEvaluator(pool, cfg.ProbeTimeout),
		Selector:  selector.NewLagSelector(cfg.StalenessThreshold),
		Promoter:  promote.NewSequencePromoter(pool, cfg.DetachRetries, cfg.DetachRetryWait),
		Announcer: initAnnouncers(awsCfg, cfg),
		Validator: validate.NewMarkerValidator(pool, cfg.ValidationTimeout),
		Notifier:  initNotifier(awsCfg, cfg),
		Metrics:   publisher,
		Leader:    coord,
		Directory: directory,
	}
	if auditStore != nil {
		deps.Audit = auditStore
	}
	if breaker != nil {
		deps.Breaker = breaker
	}

	ctrl := controller.New(controller.Config{
		PollInterval:     cfg.PollInterval,
		FailureThreshold: cfg.FailureThreshold,
	}, initialState, deps)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			log.Printf("Controller stopped with error: %v", err)
		}
	}()

	if cfg.EventsQueueURL != "" {
		consumer := events.NewConsumer(awsCfg, cfg.EventsQueueURL, ctrl)
		log.Printf("Event intake enabled from %s", cfg.EventsQueueURL)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	housekeepCfg := housekeeping.DefaultConfig()
	housekeepCfg.ArchiveRetention = cfg.AuditRetention
	var housekeepArchiver housekeeping.Archiver
	if archiver != nil {
		housekeepArchiver = archiver
	}
	runner := housekeeping.NewRunner(housekeepCfg, ctrl, pool, housekeepArchiver, publisher, coord)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	server := initAdminServer(cfg, ctrl, auditStore, breaker, promPublisher)
	go func() {
		log.Printf("Admin API listening on %s", cfg.AdminListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Admin server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin server shutdown failed: %v", err)
	}

	wg.Wait()
	log.Println("Orchestrator stopped")
	os.Exit(0)
}
