package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
)

// ExitCodeFor maps a command error to a foundry exit code. Configuration
// problems get their own code so supervisors can tell them apart from
// runtime failures.
func ExitCodeFor(err error) foundry.ExitCode {
	if envelope := asEnvelope(err); envelope != nil && envelope.Code == apperrors.CodeConfigInvalid {
		return foundry.ExitConfigInvalid
	}
	return foundry.ExitFailure
}

// ExitWithCode logs err with the exit code metadata from the foundry catalog
// and exits. A nil logger falls back to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	code := int(exitCode)
	fields := []zap.Field{zap.Int("exit_code", code)}
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code = info.Code
		fields = append(fields,
			zap.String("exit_name", info.Name),
			zap.String("exit_description", info.Description),
			zap.String("exit_category", info.Category))
	}

	if envelope := asEnvelope(err); envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID))
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok && original != nil {
			err = original
		}
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	logger.Error(msg, fields...)
	os.Exit(code)
}

// ExitWithCodeStderr writes the failure to stderr and exits. Used before a
// logger exists and by main.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	os.Exit(writeFatal(os.Stderr, exitCode, msg, err))
}

// writeFatal renders the failure and returns the process exit code.
func writeFatal(w io.Writer, exitCode foundry.ExitCode, msg string, err error) int {
	switch envelope := asEnvelope(err); {
	case envelope != nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
		if original, ok := envelope.Original.(error); ok && original != nil {
			_, _ = fmt.Fprintf(w, "Underlying error: %v\n", original)
		}
	case err != nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	default:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		_, _ = fmt.Fprintf(w, "Exit Code: %d\n", exitCode)
		return int(exitCode)
	}
	_, _ = fmt.Fprintf(w, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	return info.Code
}

func asEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		return envelope
	}
	return nil
}
