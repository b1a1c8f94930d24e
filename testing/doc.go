// Package testing provides test utilities for sourcecoord.
//
// It offers helpers for standing up real coordination backends in tests,
// in the spirit of net/http/httptest.
//
// Key utilities:
//   - StartEmbeddedNATS: In-process NATS server with JetStream
//   - CreateJetStreamKV: KV bucket laid out like a coordination bucket
//   - StartCoordinationKV: Server and bucket in one call
//   - StartPostgres: Disposable Postgres container via testcontainers
//   - NewTestLogger: Logger writing to testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    coordtest "github.com/arloliu/sourcecoord/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    kv := coordtest.StartCoordinationKV(t, "partition-items")
//	    store := natskv.New(kv)
//	}
package testing
