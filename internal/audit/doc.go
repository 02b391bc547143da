// Package audit relays security events to a Sink without blocking the
// operation that produced them.
//
// The Dispatcher owns buffering only; the engine decides which events exist.
// With DropIfFull set, a full buffer drops the event and counts it instead of
// waiting.
package audit
