// Package pushapi exposes the push dispatcher over HTTP.
//
//	POST /push/register    {identity|username, channel|platform, credential|token|subscription}
//	POST /push/unregister  {identity|username, channel|platform}
//	POST /push/send        {title, body, target|username, data}
//	GET  /push/vapid-key   {publicKey}
//
// Validation failures answer 422 with per-field messages. The API carries no
// authentication; mount it behind whatever gateway authenticates callers.
package pushapi
