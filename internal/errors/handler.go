package errors

import (
	"github.com/sirupsen/logrus"
)

// ErrorHandler turns errors returned by a command into a log entry and a
// process exit code.
type ErrorHandler struct {
	logger *logrus.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Handle logs err and returns the exit code for it. A nil error is ExitOK.
func (h *ErrorHandler) Handle(err error) int {
	if err == nil {
		return ExitOK
	}

	appErr, ok := GetAppError(err)
	if !ok {
		appErr = WrapInternalError(err, "An unexpected error occurred")
	}

	logEntry := h.logger.WithFields(logrus.Fields{
		"error_type": appErr.Type,
		"exit_code":  appErr.ExitCode,
	})
	if appErr.Code != "" {
		logEntry = logEntry.WithField("error_code", appErr.Code)
	}
	for k, v := range appErr.Details {
		logEntry = logEntry.WithField(k, v)
	}

	// Log at appropriate level
	switch appErr.Type {
	case ErrorTypeInternal, ErrorTypeOutput:
		logEntry.Error(err.Error())
	case ErrorTypeCanceled:
		logEntry.Info(err.Error())
	default:
		logEntry.Warn(err.Error())
	}

	return appErr.ExitCode
}

// ExitCodeFor returns the exit code for err without logging.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if appErr, ok := GetAppError(err); ok {
		return appErr.ExitCode
	}
	return ExitInternal
}
