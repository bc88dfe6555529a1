package main

import (
	"context"
	"log"
	"os"
	"time"

	"stateflow/common"
	"stateflow/domain"
	"stateflow/domain/item"
	"stateflow/domain/sweep"
	"stateflow/domain/transit"
	"stateflow/event"
	"stateflow/extension"
	"stateflow/infra/tracing"
	"stateflow/persistence"
	"stateflow/servehttp"
	"stateflow/session"

	"github.com/robfig/cron/v3"
)

func main() {
	log.Println("service start")

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(context.Background()).AutoMigrate(
		&domain.Workflow{}, &domain.WorkflowState{}, &domain.ConfigTransition{},
		&domain.TransitionRecord{}, &domain.PendingSchedule{},
		&domain.Item{}, &domain.ItemStateField{}, &event.EventRecord{}, &session.User{}).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	if err := session.DefaultSecurityConfiguration(context.Background()); err != nil {
		log.Fatalf("security bootstrap failed %v\n", err)
	}

	closer, err := tracing.StartTracing(common.GetServiceName())
	if err != nil {
		log.Printf("tracing disabled: %v\n", err)
	} else {
		defer closer.Close()
	}

	registry := extension.NewRegistry()
	if rule := os.Getenv("TRANSITION_RULE"); rule != "" {
		registry.Register(extension.NewExprHandler(rule))
	}
	engine := transit.NewEngine(registry)

	// periodic sweep over the window since the previous run
	sweeper := cron.New()
	lastWindowEnd := time.Now()
	_, err = sweeper.AddFunc("* * * * *", func() {
		windowEnd := time.Now()
		report, err := sweep.RunSweepFunc(context.Background(), engine, item.ResolveTarget, lastWindowEnd, windowEnd)
		if err != nil {
			common.Log.Errorf("sweep failed: %v", err)
			return
		}
		lastWindowEnd = windowEnd
		if report.Processed > 0 {
			common.Log.Infof("sweep processed %d, executed %d, stale %d, orphaned %d, failed %d",
				report.Processed, report.Executed, report.Stale, report.Orphaned, report.Failed)
		}
	})
	if err != nil {
		log.Fatalf("sweep trigger setup failed %v\n", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	httpEngine := servehttp.NewHTTPEngine()
	servehttp.RegisterSessionsHandler(httpEngine)
	servehttp.RegisterWorkflowHandler(httpEngine, engine, session.SimpleAuthFilter())
	servehttp.RegisterItemHandler(httpEngine, session.SimpleAuthFilter())
	servehttp.RegisterTransitionHandler(httpEngine, engine, session.SimpleAuthFilter())
	servehttp.RegisterSweepHandler(httpEngine, engine, session.SimpleAuthFilter())

	address := os.Getenv("BIND_ADDRESS")
	if address == "" {
		address = ":80"
	}
	if err := httpEngine.Run(address); err != nil {
		panic(err)
	}
}
