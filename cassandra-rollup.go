// Command cassandra-rollup runs the distributed metric rollup daemon: it
// coordinates with a fleet of peers over ZooKeeper to divide the storage
// cluster's token ring into disjoint ranges, and periodically rolls up
// every metric in its assigned ranges from fine to coarse retention
// archives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffpierce/cassandra-rollup/config"
	"github.com/jeffpierce/cassandra-rollup/coordination"
	"github.com/jeffpierce/cassandra-rollup/logging"
	"github.com/jeffpierce/cassandra-rollup/middleware"
	"github.com/jeffpierce/cassandra-rollup/ring"
	"github.com/jeffpierce/cassandra-rollup/rollup"
	"github.com/jeffpierce/cassandra-rollup/scheduler"
	"github.com/jeffpierce/cassandra-rollup/tree"
)

func main() {
	var opts config.Options
	flag.StringVar(&opts.ConfigFile, "config-file", "", "path to JSON configuration file")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "log level: debug|info|warn|error|fatal")
	flag.IntVar(&opts.Interval, "interval", 0, "rollup cycle interval in seconds (overrides config)")
	flag.StringVar(&opts.LogFile, "log-file", "", "path to log file (stderr if unspecified)")
	flag.StringVar(&opts.DCName, "dc-name", "", "datacenter name, reserved for future ring filtering")
	flag.Parse()

	sev, sevErr := logging.TextToSeverity(opts.LogLevel)
	log := logging.NewLogger("system", opts.LogFile, sev)
	defer log.Close()

	if sevErr != nil {
		log.LogWarn("startup: %v", sevErr)
	}
	log.LogInfo("startup: cassandra-rollup starting")

	cfg, err := config.Load(opts)
	if err != nil {
		log.LogFatal("startup: %v", err)
	}

	// statsd reporting, when configured, is purely observational and never
	// fatal to startup.
	if hp := os.Getenv("STATSD_HOST_PORT"); hp != "" {
		if err := logging.S.Open(hp, "cassandra-rollup"); err != nil {
			log.LogError("startup: not reporting to statsd: %v", err)
		} else {
			log.LogInfo("startup: reporting to statsd at %s", hp)
		}
		defer logging.S.Close()
	}

	session, err := middleware.CassandraSession(middleware.CassandraSessionOpts{
		Hosts:    cfg.CassandraServers,
		Keyspace: cfg.Keyspace,
		Username: cfg.CassandraUser,
		Password: cfg.CassandraPass,
		NumConns: cfg.NumThreads,
	})
	if err != nil {
		log.LogFatal("startup: connect to cassandra: %v", err)
	}
	defer session.Close()

	treeClient := tree.NewClient(log, session)
	if err := treeClient.EnsureSchema(context.Background(), cfg.Keyspace, cfg.Precisions); err != nil {
		log.LogFatal("startup: ensure schema: %v", err)
	}

	coord, err := coordination.Connect(log, cfg.ZKServers, cfg.ACLPassword)
	if err != nil {
		log.LogFatal("startup: connect to zookeeper: %v", err)
	}
	defer coord.Close()

	ringClient := ring.NewClient(log, cfg.CassandraUser, cfg.CassandraPass)
	engine := rollup.NewEngine(log)
	visitor := rollup.NewVisitor(log, treeClient, engine)

	reloadConfig := func() (*config.Config, error) {
		return config.Load(opts)
	}

	sched := scheduler.New(log, reloadConfig, ringClient, coord, visitor,
		time.Duration(cfg.IntervalSeconds)*time.Second, cfg.RootPath)

	ctx, cancel := context.WithCancel(context.Background())

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-sighup:
				log.LogInfo("signal: received SIGHUP, reopening logs")
				logging.Reopen()
			case <-sigterm:
				log.LogInfo("signal: received SIGINT/SIGTERM, shutting down")
				cancel()
				return
			}
		}
	}()

	log.LogInfo("startup: entering rollup cycle loop, interval=%s", time.Duration(cfg.IntervalSeconds)*time.Second)
	sched.Run(ctx)

	log.LogInfo("shutdown: complete")
}
