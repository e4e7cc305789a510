package action

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// PanicLogger receives panics recovered from work factories.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// LoggerPanicLogger reports panics as a single error entry on logger.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = normalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		var sb strings.Builder

		sb.WriteString(fmt.Sprintf("recovered from panic in %s\n", funcName))
		sb.WriteString(fmt.Sprintf("Error: %v\n", err))
		sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

		if len(fields) > 0 && len(fields[0]) > 0 {
			sb.WriteString("Context:\n")

			keys := make([]string, 0, len(fields[0]))
			for k := range fields[0] {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
			}
		}

		sb.WriteString("Stack Trace:\n")
		sb.Write(stack)

		logger.Error(sb.String())
	}
}

// panicError logs a recovered value and turns it into a work error.
func panicError(logger PanicLogger, funcName string, recovered any, fields map[string]any) error {
	fullStack := make([]byte, 8096)
	n := runtime.Stack(fullStack, false)
	if logger != nil {
		logger(funcName, recovered, cleanStackTrace(fullStack[:n]), fields)
	}

	var source error
	if err, ok := recovered.(error); ok {
		source = err
	}
	meta := mergeFields(fields, map[string]any{
		"func":  funcName,
		"panic": fmt.Sprint(recovered),
	})
	return cloneActionError(ErrWorkPanic, fmt.Sprintf("action work panicked: %v", recovered), source, meta)
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
