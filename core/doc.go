// Package core contains the build request domain: branch filter evaluation,
// the request lifecycle (created, started, finished) and the service that
// orchestrates it. Storage and build matrix adapters depend on this package;
// core must not depend on them.
package core
