// Package logging builds the process slog.Logger and carries request-scoped
// loggers through context.
//
// LOG_LEVEL selects debug, info, warn or error (default info). LOG_FORMAT
// selects json (default) or text.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
//	    logging.WithRequestID(r.Context(), h.Logger).Info("listing logs")
//	}
package logging
