// Package diagnostics reports synchronizer and dispatcher problems.
package diagnostics

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/domain/message"
)

// Broadcaster delivers outbound messages to subscribers.
type Broadcaster interface {
	Broadcast(*message.Message)
}

// Reporter writes diagnostics to the log and, when a broadcaster is set,
// publishes them as Diagnostic messages. It never fails. Broadcast is
// called on the reporting goroutine, so the broadcaster must not wait on
// subscribers (see notification.Publisher).
type Reporter struct {
	broadcaster Broadcaster
}

// NewReporter creates a reporter. broadcaster may be nil.
func NewReporter(broadcaster Broadcaster) *Reporter {
	return &Reporter{broadcaster: broadcaster}
}

// Warn reports a recoverable problem.
func (r *Reporter) Warn(msg string, context map[string]any) {
	r.report(zerolog.WarnLevel, msg, context)
}

// Error reports a failed operation.
func (r *Reporter) Error(msg string, context map[string]any) {
	r.report(zerolog.ErrorLevel, msg, context)
}

func (r *Reporter) report(level zerolog.Level, msg string, context map[string]any) {
	ev := zlog.WithLevel(level)
	for _, k := range sortedKeys(context) {
		if err, ok := context[k].(error); ok {
			ev = ev.AnErr(k, err)
		} else {
			ev = ev.Interface(k, context[k])
		}
	}
	ev.Msg(msg)

	if r.broadcaster == nil {
		return
	}

	out, err := message.New(message.TagDiagnostic, message.DiagnosticData{
		Level:   level.String(),
		Message: msg,
		Context: publishable(context),
	})
	if err != nil {
		zlog.Debug().Msgf("diagnostics: cannot publish %q: %v", msg, err)
		return
	}
	r.broadcaster.Broadcast(out)
}

// publishable replaces errors with their text so the context marshals to JSON.
func publishable(context map[string]any) map[string]any {
	if len(context) == 0 {
		return nil
	}
	out := make(map[string]any, len(context))
	for k, v := range context {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
		} else {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
