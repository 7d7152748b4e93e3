package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/manifoldco/promptui"
	log "github.com/sirupsen/logrus"

	"github.com/ethstorage/directrequest-cli/pkg/config"
	"github.com/ethstorage/directrequest-cli/pkg/contracts"
	"github.com/ethstorage/directrequest-cli/pkg/correlate"
	"github.com/ethstorage/directrequest-cli/pkg/directrequest"
	"github.com/ethstorage/directrequest-cli/pkg/stats"
	"github.com/ethstorage/directrequest-cli/pkg/transport"
)

var (
	majorVersion = "0"
	minorVersion = "1"
	patchVersion = "0"
	releaseInfo  = "beta"
	commitInfo   string
)

// versionInfo returns the semantic versioning info of the running binary
func versionInfo() string {
	return fmt.Sprintf("%s.%s.%s-%s+%s", majorVersion, minorVersion, patchVersion, releaseInfo, commitInfo)
}

// configFile is the first command line argument, .env when absent.
func configFile(args []string) string {
	if len(args) > 1 && args[1] != "" {
		return args[1]
	}
	return config.DefaultFile
}

func main() {
	conf, err := config.Load(configFile(os.Args))
	if err != nil {
		log.Fatalf("Cannot load config: %v\n", err)
	}
	log.SetLevel(log.Level(conf.Verbosity))
	log.SetFormatter(&log.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
	log.Infof("directrequest version %s", versionInfo())

	sel, err := transport.Select(conf)
	if err != nil {
		log.Fatalf("Cannot select transport: %v\n", err)
	}
	account, err := conf.Account()
	if err != nil {
		log.Fatalf("Invalid ACCOUNT_ADDRESS: %v\n", err)
	}

	ctx := context.Background()
	tr, err := transport.Dial(ctx, sel, conf.RPCURL, account)
	if err != nil {
		log.Fatalf("Cannot connect to %q: %v\n", conf.RPCURL, err)
	}
	tr.Logger = log.StandardLogger()
	tr.ReceiptPollInterval = time.Duration(conf.ReceiptPollInterval)

	events, err := transport.DialEvents(ctx, conf.EventsEndpoint(), time.Duration(conf.EventPollInterval), log.StandardLogger())
	if err != nil {
		log.Fatalf("Cannot connect events endpoint %q: %v\n", conf.EventsEndpoint(), err)
	}

	artifacts, err := contracts.LoadArtifacts(conf.ArtifactsDir)
	if err != nil {
		log.Fatalf("Cannot load contract artifacts: %v\n", err)
	}
	for _, name := range contracts.Names {
		if len(artifacts[name].Bytecode) == 0 {
			log.Warnf("No bytecode for %s, set ARTIFACTS_DIR to deploy it", name)
		}
	}
	registry, err := contracts.NewRegistry(artifacts, tr, events, account)
	if err != nil {
		log.Fatalf("Cannot build contract registry: %v\n", err)
	}

	recorder := stats.New(conf.Influx, log.StandardLogger())

	log.Infof("Transport %s on %s", sel.Kind, conf.RPCURL)
	if sel.Kind == transport.KindHTTP && account == (common.Address{}) {
		log.Warn("ACCOUNT_ADDRESS is not set, the node's first account sends transactions")
	}

	m := &menu{
		ctx: ctx,
		op: &directrequest.Operator{
			Config:     conf,
			Registry:   registry,
			Transport:  tr,
			Events:     events,
			Correlator: &correlate.Correlator{Timeout: time.Duration(conf.EventTimeout), Logger: log.StandardLogger()},
			Stats:      recorder,
			Logger:     log.StandardLogger(),
		},
	}

	shutdown := func(code int) {
		recorder.Close()
		events.Close()
		tr.Close()
		os.Exit(code)
	}

	shutdown(session(m.open, conf.Repeat))
}

// session runs one menu action and returns the process exit code. With
// repeat set the menu is shown again after each action until Quit or Ctrl-C,
// and failures are only logged.
func session(open func() error, repeat bool) int {
	for {
		err := open()
		switch {
		case err == nil:
		case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, errQuit):
			return 0
		default:
			log.Error(err)
			if !repeat {
				return 1
			}
		}
		if !repeat {
			return 0
		}
	}
}
