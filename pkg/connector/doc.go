// Package connector holds the pieces that move data from a remote source to
// Singer-style messages.
//
// # Architecture Overview
//
//   - core: the contracts between the engine, the remote source and the
//     message sink (Session, QueryFunc, Sink, StateSaver) and the page cursor.
//
//   - base: reusable building blocks. PageIterator walks the pages of one
//     window with retries and re-login, RetryPolicy backs off on timeouts,
//     DerivedID stamps surrogate keys and ProgressReporter logs throughput.
//
//   - engine: syncs one stream. It writes the SCHEMA message, walks the
//     stream's windows, projects and writes each record, and persists the
//     bookmark after every completed window.
//
//   - registry: source factories and the stream definitions of a source. It
//     builds the discovery catalog and resolves catalog entries to engine
//     tables.
//
//   - sources: source implementations. Importing the package registers them.
//
// # Example Usage
//
//	src, err := registry.CreateSource("bronto", cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//
//	streams, err := registry.NewStreams(src)
//	if err != nil {
//		return err
//	}
//	if err := src.Login(ctx); err != nil {
//		return err
//	}
//
//	cat := streams.Discover(true)
//	eng := engine.New(sink, start, engine.WithLogger(logger))
//	for _, entry := range cat.Streams {
//		table, err := streams.Resolve(entry, logger)
//		if err != nil {
//			return err
//		}
//		if bookmarks, err = eng.Sync(ctx, table, bookmarks); err != nil {
//			return err
//		}
//	}
//
// Bookmarks returned by Engine.Sync are valid even when it fails: they cover
// every window that completed before the error.
package connector
