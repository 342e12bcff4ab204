// Package requestid attaches a correlation id to every HTTP request served by
// the push API. A client supplied X-Request-ID is reused when it is short and
// made of [A-Za-z0-9_-]; anything else is replaced with a fresh UUID. The id
// is echoed in the response header, stored in the request context and added
// to every log record through LoggerExtractor.
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	router.Use(requestid.Middleware)
package requestid
