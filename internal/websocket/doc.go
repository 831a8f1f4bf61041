// Package websocket streams pipeline run events to browser clients.
//
// The Hub implements the run manager's event sink: every step transition is
// serialised as a Message and fanned out to connected clients. Broadcasting
// never blocks a run; slow clients are disconnected and events are dropped
// when the queue is full.
package websocket
