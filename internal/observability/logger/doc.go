// Package logger provides a singleton zap logger with context-based scoping.
//
// Init is called once from the CLI; request handlers derive a scoped logger
// with From(ctx) which falls back to the singleton when the request carries
// none:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Strategy("twitter"), logger.Phase("request"))
//	log.Info("redirecting to provider")
package logger
