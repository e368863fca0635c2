// Package server exposes page registries over HTTP.
//
// Each client session owns one registry. The JSON API mirrors the registry
// operations, and a websocket at /api/sessions/{id}/events streams every
// change batch so a front end can keep its tab bar and keep-alive include
// list in sync.
//
// # Errors
//
// Failures are answered with a coded JSON body:
//
//	{"code":"P002","category":"registry","message":"Identity collision","detail":"..."}
//
// Page not found and unknown sessions are 404, identity collisions and
// concurrent refreshes are 409, and malformed targets are 400.
//
// # Event stream
//
// The first frame is {"type":"state","state":{...}}. Every later frame is
// {"type":"batch","batch":{...}} carrying the batch exactly as observers
// receive it. A client that falls more than EventBuffer batches behind is
// disconnected and should reconnect for a fresh state frame.
//
// # Usage
//
//	mgr := session.NewManager(session.DefaultManagerConfig(), logger)
//	srv := server.New(server.DefaultServerConfig(), mgr)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
