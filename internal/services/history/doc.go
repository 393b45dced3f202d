// Package history persists relayed messages on a best-effort basis.
//
// The Recorder sits between the relay path and a domain.MessageStore. Record
// never blocks: it hands the message to a bounded queue drained by a single
// worker and reports false when the queue is full. Store failures are logged
// and otherwise ignored, so persistence can never delay or fail a delivery.
package history
