// Package ws streams fmstub activity over WebSocket so a developer can watch
// a dry run live.
//
// Hub.Publish(event, data) is called by the api handlers on every token
// request ("token") and resource request ("resource"); Hub.Run(ctx) adds a
// "stats" event every interval. Each message is
//
//	{"event": "<name>", "data": {...}}
//
// The endpoint is mounted at /ws/events by fmstub.
package ws
