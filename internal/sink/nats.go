// file: internal/sink/nats.go

package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"

	"install-credentials/config"
	"install-credentials/internal/logger"
	"install-credentials/internal/token"
)

const (
	// natsKVOperationTimeout bounds opening the bucket and each Put
	natsKVOperationTimeout = 10 * time.Second

	natsReconnectWait = 50 * time.Millisecond
)

// keyValuePutter is the slice of jetstream.KeyValue the sink needs
type keyValuePutter interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// KVSink publishes the token to a NATS JetStream KV bucket so that other
// processes can pick it up without talking to GitHub.
type KVSink struct {
	conn   *nats.Conn
	kv     keyValuePutter
	bucket string
	key    string
	logger *logger.Logger
}

// NewKVSink connects to NATS and opens the bucket. The bucket must already
// exist.
func NewKVSink(cfg *config.NATSConfig, log *logger.Logger) (*KVSink, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log.Info("connecting to NATS", "urls", cfg.URLs)

	opts, err := buildNATSOptions(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS options: %w", err)
	}

	nc, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("NATS connection established", "connectedURL", nc.ConnectedUrl())

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsKVOperationTimeout)
	defer cancel()

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		nc.Close()
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, fmt.Errorf("KV bucket '%s' not found. Create it with: nats kv add %s", cfg.Bucket, cfg.Bucket)
		}
		return nil, fmt.Errorf("failed to open KV bucket '%s': %w", cfg.Bucket, err)
	}

	log.Info("KV bucket opened", "bucket", cfg.Bucket)

	return &KVSink{conn: nc, kv: kv, bucket: cfg.Bucket, key: cfg.Key, logger: log}, nil
}

func (s *KVSink) Name() string {
	return "nats-kv"
}

func (s *KVSink) Write(ctx context.Context, cred token.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, natsKVOperationTimeout)
	defer cancel()

	rev, err := s.kv.Put(ctx, s.key, []byte(cred.Value))
	if err != nil {
		return fmt.Errorf("failed to store token in bucket %s: %w", s.bucket, err)
	}

	s.logger.Debug("token stored in KV", "bucket", s.bucket, "key", s.key, "revision", rev)
	return nil
}

// Close drains the connection
func (s *KVSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	s.logger.Info("NATS connection closed")
	return nil
}

// buildNATSOptions creates connection options with auth and TLS
func buildNATSOptions(cfg *config.NATSConfig, log *logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("install-credentials"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
	}

	switch {
	case cfg.CredsFile != "":
		log.Info("using NATS creds file authentication", "credsFile", cfg.CredsFile)
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	case cfg.NKeySeedFile != "":
		opt, err := nkeyOption(cfg.NKeySeedFile)
		if err != nil {
			return nil, err
		}
		log.Info("using NATS NKey authentication", "seedFile", cfg.NKeySeedFile)
		opts = append(opts, opt)
	case cfg.Token != "":
		log.Info("using NATS token authentication")
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.Username != "":
		log.Info("using NATS username/password authentication", "username", cfg.Username)
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.TLS.Enable {
		log.Info("enabling TLS", "insecure", cfg.TLS.Insecure)

		tlsConfig := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLS.Insecure,
		}
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert/key: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	return opts, nil
}

// nkeyOption reads a user seed and signs server nonces with it
func nkeyOption(seedFile string) (nats.Option, error) {
	seed, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read NKey seed: %w", err)
	}

	kp, err := nkeys.FromSeed([]byte(strings.TrimSpace(string(seed))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse NKey seed: %w", err)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive NKey public key: %w", err)
	}
	if !nkeys.IsValidPublicUserKey(pub) {
		return nil, fmt.Errorf("NKey seed is not a user seed")
	}

	return nats.Nkey(pub, kp.Sign), nil
}
