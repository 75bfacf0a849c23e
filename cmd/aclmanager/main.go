/*
 * Cherry - An OpenFlow Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/api"
	"github.com/kndrvt/acl-manager/database"
	"github.com/kndrvt/acl-manager/enforcer"
	"github.com/kndrvt/acl-manager/log"
	"github.com/kndrvt/acl-manager/network"
	"github.com/kndrvt/acl-manager/topology"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	programName     = "aclmanager"
	programVersion  = "0.1.0"
	defaultLogLevel = logging.INFO
)

var (
	logger            = logging.MustGetLogger("main")
	loggerLeveled     logging.LeveledBackend
	showVersion       = flag.Bool("version", false, "Show program version and exit")
	defaultConfigFile = flag.String("config", fmt.Sprintf("/usr/local/etc/%v.yaml", programName), "absolute path of the configuration file")
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	flag.Parse()
	if *showVersion {
		fmt.Printf("Version: %v\n", programVersion)
		os.Exit(0)
	}

	conf, err := readConfig(*defaultConfigFile)
	if err != nil {
		logger.Fatalf("failed to read the configuration: %v", err)
	}
	loggerLeveled, err = log.NewBackend(conf.GetString("default.log_output"), programName, getLogLevel(conf.GetString("default.log_level")))
	if err != nil {
		logger.Fatalf("failed to init log: %v", err)
	}
	watchConfig(conf)

	source, closer, err := newPolicySource(conf)
	if err != nil {
		logger.Fatalf("failed to init the policy source: %v", err)
	}
	defer closer()
	store, err := loadPolicy(source)
	if err != nil {
		logger.Fatalf("failed to load the initial policy: %v", err)
	}

	controller := network.NewController(networkConfig(conf))
	engine := enforcer.New(engineConfig(conf), store, topology.NewModel(), controller, enforcer.LogSink{})
	controller.SetEventListener(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	initSignalHandler(controller, engine, cancel)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return listen(ctx, conf.GetInt("default.port"), controller) })
	if port := conf.GetInt("rest.port"); port > 0 {
		srv := &api.Server{Port: uint16(port), Manager: &manager{engine: engine, source: source}}
		if conf.GetBool("rest.tls") {
			srv.TLS.Cert = conf.GetString("rest.cert_file")
			srv.TLS.Key = conf.GetString("rest.key_file")
		}
		g.Go(func() error { return srv.Serve(ctx) })
	}
	if v, ok := source.(acl.FileSource); ok {
		g.Go(func() error {
			return watchPolicy(ctx, v.Path, func() {
				if err := engine.ReloadPolicy(source); err != nil {
					logger.Errorf("failed to reload the policy file: %v", err)
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		logger.Errorf("terminated: %v", err)
		os.Exit(1)
	}
	logger.Info("terminated")
}

func readConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	// Read the config file.
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read the config file")
	}
	if err := validateConfig(v); err != nil {
		return nil, errors.Wrap(err, "failed to validate the configuration")
	}

	return v, nil
}

// watchConfig re-reads the config file whenever it changes. Only the log
// level is applied on the fly.
func watchConfig(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		// Ignore the WRITE operation to avoid reading empty config.
		if e.Op != fsnotify.Write {
			return
		}

		if loggerLeveled != nil {
			// Set log level for all modules
			loggerLeveled.SetLevel(getLogLevel(v.GetString("default.log_level")), "")
		}
	})
	v.WatchConfig()
}

func getLogLevel(level string) logging.Level {
	level = strings.ToUpper(level)
	ret, err := logging.LogLevel(level)
	if err != nil {
		logger.Infof("invalid log level=%v, defaulting to %v..", level, defaultLogLevel)
		return defaultLogLevel
	}

	return ret
}

func newPolicySource(v *viper.Viper) (source acl.Source, closer func(), err error) {
	if v.GetString("acl.source") == sourceMySQL {
		db, err := database.NewMySQL(mysqlConfig(v))
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to init MySQL database")
		}
		return db, func() { db.Close() }, nil
	}

	return acl.FileSource{Path: v.GetString("acl.file")}, func() {}, nil
}

func loadPolicy(source acl.Source) (*acl.Store, error) {
	doc, err := source.Load()
	if err != nil {
		return nil, err
	}
	p, err := acl.NewPolicy(doc)
	if err != nil {
		return nil, err
	}
	logger.Infof("initial policy is loaded: rules=%v, default=%v", len(p.Rules()), p.Default())

	return acl.NewStore(p), nil
}

func initSignalHandler(controller *network.Controller, engine *enforcer.Engine, cancel context.CancelFunc) {
	go func() {
		c := make(chan os.Signal, 5)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

		// Infinte loop.
		for {
			s := <-c
			if s == syscall.SIGTERM || s == syscall.SIGINT {
				// Graceful shutdown
				logger.Warning("Shutting down...")
				cancel()
				return
			} else if s == syscall.SIGHUP {
				fmt.Println("* Controller status:")
				fmt.Println(controller.String())
				fmt.Printf("\n* Engine status:\n")
				fmt.Println(engine.String())
				fmt.Printf("\n* Links:\n")
				fmt.Println(spew.Sdump(engine.Topology().Links()))
			}
		}
	}()
}

func listen(ctx context.Context, port int, controller *network.Controller) error {
	type KeepAliver interface {
		SetKeepAlive(keepalive bool) error
		SetKeepAlivePeriod(d time.Duration) error
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %v port", port)
	}
	// Unblock Accept on shutdown.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	logger.Infof("OpenFlow listener is running on %v", listener.Addr())

	// Connection dispatcher.
	f := func(c chan<- net.Conn) {
		for {
			conn, err := listener.Accept()
			if err != nil {
				// Check shutdown signal
				select {
				case <-ctx.Done():
					logger.Info("socket listener is finished by the shutdown signal")
					return
				default:
				}
				logger.Errorf("failed to accept a new connection: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			logger.Infof("new device is connected from %v", conn.RemoteAddr())

			// Pass the new connection into the backlog queue.
			c <- conn
		}
	}
	backlog := make(chan net.Conn, 32)
	go f(backlog)

	// Infinite loop
	for {
		select {
		case <-ctx.Done():
			logger.Debug("terminating the main listener loop...")
			return nil
		case conn := <-backlog:
			logger.Debug("fetching a new connection from the backlog..")
			if v, ok := conn.(KeepAliver); ok {
				logger.Debug("trying to enable socket keepalive..")
				if err := v.SetKeepAlive(true); err == nil {
					logger.Debug("setting socket keepalive period...")
					// Makes a broken connection will be disconnected within 45 seconds.
					v.SetKeepAlivePeriod(time.Duration(5) * time.Second)
				} else {
					logger.Errorf("failed to enable socket keepalive: %v", err)
				}
			}
			controller.AddConnection(ctx, conn)
		}
	}
}
