package stats

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"

	"github.com/ethstorage/directrequest-cli/pkg/config"
)

const measurement = "directrequest"

// Action describes one completed menu action.
type Action struct {
	Name    string
	Kind    string
	TxHash  common.Hash
	Address common.Address
}

type Recorder interface {
	Record(ctx context.Context, a Action)
	Close()
}

// New returns an InfluxDB recorder, or a no-op one when no server or token
// is configured.
func New(conf config.Influx, logger *log.Logger) Recorder {
	if conf.URL == "" || conf.Token == "" {
		return Noop{}
	}
	client := influxdb2.NewClient(conf.URL, conf.Token)
	return &Influx{
		writeAPI: client.WriteAPIBlocking(conf.Org, conf.Bucket),
		close:    client.Close,
		logger:   logger,
	}
}

type Noop struct{}

func (Noop) Record(context.Context, Action) {}
func (Noop) Close()                         {}

type Influx struct {
	writeAPI api.WriteAPIBlocking
	close    func()
	logger   *log.Logger
}

// NewInflux wraps an existing blocking write API.
func NewInflux(writeAPI api.WriteAPIBlocking, logger *log.Logger) *Influx {
	return &Influx{writeAPI: writeAPI, logger: logger}
}

// Record writes one point per action. Write failures are logged, never
// returned.
func (s *Influx) Record(ctx context.Context, a Action) {
	if err := s.writeAPI.WritePoint(ctx, point(a, time.Now())); err != nil && s.logger != nil {
		s.logger.Errorln("db err", err)
	}
}

func (s *Influx) Close() {
	if s.close != nil {
		s.close()
	}
}

func point(a Action, at time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("action", a.Name).
		AddTag("kind", a.Kind).
		SetTime(at)
	if a.TxHash != (common.Hash{}) {
		p.AddField("tx", a.TxHash.Hex())
	}
	if a.Address != (common.Address{}) {
		p.AddField("address", a.Address.Hex())
	}
	if len(p.FieldList()) == 0 {
		p.AddField("count", 1)
	}
	return p
}
