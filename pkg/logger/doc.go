// Package logger builds the *slog.Logger used across the push service and
// provides attribute helpers so that every component names the same fields
// the same way (identity, channel, dispatch_id, outcome, ...).
//
// New assembles a slog.TextHandler or slog.JSONHandler from functional
// options and wraps it with a decorator that runs ContextExtractor callbacks
// on every record, which is how request-scoped values such as the request id
// end up in log lines without being threaded through call sites.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "pushd"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "Dispatch completed",
//	    logger.DispatchID(id),
//	    logger.Count("succeeded", result.Succeeded),
//	)
//
// Error and Errors return an empty attribute for nil input, so
//
//	log.Info("prune finished", logger.Error(err))
//
// needs no surrounding nil check.
package logger
