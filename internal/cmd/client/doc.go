// Package client provides the `allocd` command-line client.
//
// The CLI talks to the allocd HTTP API to perform common operations from a
// terminal. It is primarily intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it defaults
// to http://127.0.0.1:8080 and can be overridden with ALLOCD_HTTP.
//
// Usage
//
//	allocd request submit --website example.com --priority 5 --config '{"depth":2}'
//	allocd request list --status NEW
//
//	allocd alloc process
//	allocd alloc claim --worker w1 --max 4
//	allocd alloc complete --item <hex-id> --outcome DONE --result '{"pages":3}'
//	allocd alloc pending --filter 'website == "example.com" && score > 50'
//	allocd alloc release
//	allocd alloc stats
//
//	allocd config list
//	allocd config set --key claim_lease_ms --value 30000
//	allocd config reset
//
//	allocd stats daily --from 2026-01-01
//	allocd stats websites --website example.com
//	allocd stats rebuild
//
//	allocd audit list --limit 50
package client
