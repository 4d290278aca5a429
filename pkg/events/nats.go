package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var errConnNotInitialized = errors.New("NATS connection not initialized")

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	Servers       []string `mapstructure:"servers"`
	Stream        string   `mapstructure:"stream"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	TLS           struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
		CAFile   string `mapstructure:"ca_file"`
	} `mapstructure:"tls"`
}

func (c NATSConfig) withDefaults() NATSConfig {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.SubjectPrefix = cmp.Or(c.SubjectPrefix, "restful")
	c.Stream = cmp.Or(c.Stream, c.SubjectPrefix+"-events")
	return c
}

// NATS publishes events to a JetStream stream on subjects
// <prefix>.<resource>.<action>.
type NATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    NATSConfig
	logger *zap.Logger
}

// ConnectNATS connects to the first reachable server and makes sure the
// stream exists.
func ConnectNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &NATS{cfg: cfg, logger: logger}

	var err error
	for _, server := range cfg.Servers {
		p.nc, err = nats.Connect(server, defaultOptions(cfg)...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	if p.js, err = p.nc.JetStream(); err != nil {
		p.nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := p.ensureStream(); err != nil {
		p.nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *NATS) subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", p.cfg.SubjectPrefix, e.Resource, e.Action)
}

// Publish sends e with its ID as the JetStream message id, so a retried
// publish is not stored twice.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	if p.js == nil {
		return errConnNotInitialized
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if e.ID != "" {
		opts = append(opts, nats.MsgId(e.ID))
	}
	if _, err := p.js.Publish(p.subject(e), data, opts...); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATS) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

func (p *NATS) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.cfg.Stream,
		Subjects: []string{p.cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := p.js.StreamInfo(p.cfg.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = p.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			p.logger.Info("updated stream", zap.String("stream", p.cfg.Stream))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.cfg.Stream))
	return nil
}

func streamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name &&
		a.Storage == b.Storage &&
		a.Replicas == b.Replicas &&
		slices.Equal(a.Subjects, b.Subjects)
}

func defaultOptions(c NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("restful"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}
