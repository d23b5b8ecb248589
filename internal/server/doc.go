// Package server hosts the Fiber HTTP service that exposes the disk cache:
// request-id middleware, source route resolution for /fetch/<source>/<path>,
// structured JSON errors, and the hook point for /-/ diagnostics routes that
// the routes subpackage registers. The fetch handler itself lives in
// internal/proxy so that tests can inject fakes.
package server
