// Package brontotap extracts data from the Bronto marketing API and writes it
// as a stream of Singer-style SCHEMA, RECORD and STATE messages.
//
// # Streams
//
//	contact            INCREMENTAL on modified, 6 hour windows, numbered pages
//	inbound_activity   INCREMENTAL on createdDate, 1 hour windows, FIRST/NEXT reads
//	outbound_activity  INCREMENTAL on createdDate, 1 hour windows, FIRST/NEXT reads
//	unsubscribe        INCREMENTAL on start_date, 6 hour windows, numbered pages
//	list               FULL_TABLE, numbered pages
//
// Activity streams rewind three days behind their bookmark, and never start
// earlier than the thirty days the API retains. Their records carry a derived
// id, the md5 of the identifying fields.
//
// # Quick Start
//
// Discover the catalog, select streams, then sync:
//
//	bronto-tap --config config.yaml --discover > catalog.json
//	bronto-tap --config config.yaml --catalog catalog.json --state state.json
//
// A minimal config.yaml:
//
//	token: ${BRONTO_TOKEN}
//	start_date: "2017-01-01T00:00:00Z"
//	state_store:
//	  backend: file
//	  path: ./state.json
//	output:
//	  path: ./out.jsonl.zst
//	  compression: zstd
//
// Every key can be overridden with a BRONTO_ prefixed environment variable,
// and a .env file in the working directory is loaded first.
//
// # Key Packages
//
//	internal/pipeline            - One run: login, stream loop, final state
//	pkg/connector/engine         - Window and page walk of one stream
//	pkg/connector/sources/bronto - SOAP client and stream definitions
//	pkg/catalog                  - Catalog, schemas and field selection
//	pkg/state                    - Bookmarks and the file, S3, GCS and Postgres stores
//	pkg/window                   - Window planning and start policies
//	pkg/output                   - Message writer with optional compression
//	pkg/config                   - Configuration loading and validation
//	pkg/errors                   - Structured error handling
//	pkg/logger                   - Structured logging
//	pkg/metrics                  - Prometheus metrics
//	pkg/observability            - OpenTelemetry tracing
package brontotap
