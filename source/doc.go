// Package source provides discovery backends for the shard package.
//
//   - Static: in-memory topology for tests and examples
//   - dynamodb: DynamoDB tables and DynamoDB Streams shards
//
// Custom backends implement shard.Lister and shard.Validator.
package source
