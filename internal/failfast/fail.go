package failfast

import (
	"context"
	"errors"
	"os"
	"runtime"

	"minion/internal/config"
	"minion/internal/docker"
	"minion/internal/executor"
	"minion/internal/logger"
	"minion/internal/pipeline"
	"minion/internal/prompt"
	"minion/internal/sanitizer"
	"minion/internal/server"
	"minion/internal/server/preparation"
	"minion/internal/templates"
)

type ErrorLevel int

const (
	Ignore   ErrorLevel = iota // do nothing, just log
	Warn                       // log a Warning
	Error                      // log an Error and exit with code 1
	Critical                   // log a Critical error and exit with code 1
	Panic                      // log a Panic error and Panic
)

var (
	failfastLogger = logger.PackageLogger("FailFast::", "🚨 FailFast::")
	osExit         = os.Exit
	exit           = osExit
)

// Kind names the class of err for the operator.
func Kind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case sanitizer.IsSecurityError(err),
		errors.Is(err, config.ErrInvalidVolume),
		errors.Is(err, config.ErrInvalidPort),
		errors.Is(err, config.ErrNoURL),
		errors.Is(err, config.ErrEntry),
		errors.Is(err, prompt.ErrMissing),
		errors.Is(err, docker.ErrDockerfileNotFound),
		errors.Is(err, docker.ErrInvalidImageName),
		errors.Is(err, templates.ErrUnboundPlaceholder),
		errors.Is(err, templates.ErrInvalidDocument):
		return "validation"
	case errors.Is(err, server.ErrHostKey):
		return "host key"
	case errors.Is(err, server.ErrAuth):
		return "authentication"
	case errors.Is(err, server.ErrNetwork):
		return "network"
	case errors.Is(err, preparation.ErrPrerequisiteCheckFailed), errors.Is(err, executor.ErrLaunch):
		return "local process"
	case errors.Is(err, config.ErrRead), errors.Is(err, config.ErrWrite):
		return "io"
	case errors.Is(err, pipeline.ErrStepFailed), errors.Is(err, server.ErrUpload):
		return "remote command"
	default:
		return "error"
	}
}

func Failfast(err error, level ErrorLevel, message string) {
	if err == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		failfastLogger.Error("Failed to retrieve caller information: %v", err)
		return
	}
	funcname := runtime.FuncForPC(pc).Name()

	if level >= Error {
		failfastLogger.Error("%s: %s", message, Kind(err))
		failfastLogger.Error("%v", err)
		failfastLogger.Debug("%s:%d %s", file, line, funcname)
	}
	switch level {
	case Ignore:
		failfastLogger.Debug("Ignoring error: %v", err)
	case Warn:
		failfastLogger.Warn("%s: %v", message, err)
	case Error, Critical:
		exit(1)
	case Panic:
		panic(err)
	}
}
