// internal/observer/log.go
package observer

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

// NewLogObserver logs every event. Failures log at warn, denials and
// lifecycle milestones at info, everything else at debug.
func NewLogObserver(logger *zap.Logger) webview.Observer {
	log := logger.Named("events")
	return func(ev webview.Event) {
		fields := []zap.Field{
			zap.String("generation", ev.Generation()),
			zap.String("kind", string(ev.Kind())),
		}

		switch e := ev.(type) {
		case webview.PolicyDecision:
			fields = append(fields, zap.String("url", e.URL), zap.String("host", e.Host), zap.Stringer("verdict", e.Verdict))
			if e.Verdict == policy.Deny {
				log.Info("Navigation denied.", fields...)
				return
			}
			log.Debug("Navigation allowed.", fields...)
		case webview.AuthChallengeEvent:
			fields = append(fields,
				zap.String("method", string(e.Challenge.Method)),
				zap.String("host", e.Challenge.Host),
				zap.String("realm", e.Challenge.Realm),
				zap.Bool("proxy", e.Challenge.Proxy),
				zap.String("disposition", string(e.Disposition)))
			if e.Credential != nil {
				fields = append(fields, zap.String("username", e.Credential.Username))
			}
			log.Info("Authentication challenge answered.", fields...)
		case webview.ProvisionalStarted:
			log.Debug("Navigation started.", fields...)
		case webview.ServerRedirect:
			log.Debug("Server redirect.", append(fields, zap.String("url", e.URL))...)
		case webview.Committed:
			log.Info("Navigation committed.", append(fields, zap.String("url", e.URL))...)
		case webview.Finished:
			log.Info("Navigation finished.", append(fields, zap.String("title", e.Title))...)
		case webview.ProvisionalFailed:
			log.Warn("Navigation failed before commit.", append(fields, zap.Error(e.Err))...)
		case webview.Failed:
			log.Warn("Navigation failed.", append(fields, zap.Error(e.Err))...)
		default:
			log.Debug("Navigation event.", fields...)
		}
	}
}
