package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSOption adjusts the embedded server before it starts.
type NATSOption func(*server.Options)

// WithServerName names the embedded server, which shows up in JetStream
// cluster info and server logs.
func WithServerName(name string) NATSOption {
	return func(o *server.Options) {
		o.ServerName = name
	}
}

// WithJetStreamMaxMemory caps the memory JetStream may use for in-memory buckets.
func WithJetStreamMaxMemory(bytes int64) NATSOption {
	return func(o *server.Options) {
		o.JetStreamMaxMemory = bytes
	}
}

// KVOption adjusts the configuration of a test KV bucket.
type KVOption func(*jetstream.KeyValueConfig)

// WithKVHistory keeps n revisions per key. Coordination stores only need the
// latest one; a longer history helps tests that inspect earlier writes.
func WithKVHistory(n uint8) KVOption {
	return func(c *jetstream.KeyValueConfig) {
		c.History = n
	}
}

// WithKVFileStorage stores the bucket on disk inside the test's temp directory.
func WithKVFileStorage() KVOption {
	return func(c *jetstream.KeyValueConfig) {
		c.Storage = jetstream.FileStorage
	}
}

// StartEmbeddedNATS starts an in-process NATS server with JetStream enabled.
//
// The server listens on a random local port and keeps JetStream data in
// t.TempDir(). Server and connection are shut down during test cleanup.
//
// Parameters:
//   - t: Testing context for failures and cleanup
//   - opts: Optional server adjustments
//
// Returns:
//   - *server.Server: The embedded server
//   - *nats.Conn: Client connected to it
//
// Example:
//
//	_, nc := coordtest.StartEmbeddedNATS(t)
//	js, _ := jetstream.New(nc)
//	store, _ := natskv.NewStore(t.Context(), js, natskv.DefaultConfig())
func StartEmbeddedNATS(t *testing.T, opts ...NATSOption) (*server.Server, *nats.Conn) {
	t.Helper()

	serverOpts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	for _, opt := range opts {
		opt(serverOpts)
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		t.Fatalf("embedded NATS server: %v", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server did not accept connections within 5s")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// CreateJetStreamKV creates a KV bucket laid out like a coordination bucket:
// one replica, in memory, latest revision only, no TTL. Records must outlive
// their leases, so tests never get a TTL.
//
// Parameters:
//   - t: Testing context
//   - nc: Connection from StartEmbeddedNATS
//   - bucket: Bucket name
//   - opts: Optional bucket adjustments
//
// Returns:
//   - jetstream.KeyValue: The new bucket
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucket string, opts ...KVOption) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream context: %v", err)
	}

	cfg := jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "sourcecoord test partition items",
		History:     1,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	kv, err := js.CreateKeyValue(t.Context(), cfg)
	if err != nil {
		t.Fatalf("create KV bucket %q: %v", bucket, err)
	}

	return kv
}

// StartCoordinationKV starts an embedded server and returns a fresh
// coordination bucket on it, for tests that only talk to the bucket.
//
// Example:
//
//	kv := coordtest.StartCoordinationKV(t, "partition-items")
//	store := natskv.New(kv)
func StartCoordinationKV(t *testing.T, bucket string, opts ...KVOption) jetstream.KeyValue {
	t.Helper()

	_, nc := StartEmbeddedNATS(t)

	return CreateJetStreamKV(t, nc, bucket, opts...)
}
