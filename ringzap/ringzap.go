// Package ringzap logs chash.Ring events with zap.
package ringzap

import (
	"go.uber.org/zap"

	"github.com/gobwas/chash"
)

// Trace returns ring trace hooks which log events to l.
//
// Changes of the targets table and lookups are logged at Debug level;
// continuum rebuilds and decoding at Info level. Failed operations are
// logged at Warn level with the error kind in "kind" field.
func Trace(l *zap.Logger) chash.Trace {
	l = l.Named("chash")
	return chash.Trace{
		OnTargets: func(info chash.TargetsInfo) {
			if !l.Core().Enabled(zap.DebugLevel) {
				return
			}
			l.Debug("targets changed",
				zap.String("op", info.Op),
				zap.String("target", info.Name),
				zap.Int("weight", info.Weight),
				zap.Int("targets", info.Count),
			)
		},
		OnFreeze: func(start chash.FreezeStartInfo) func(chash.FreezeDoneInfo) {
			return func(info chash.FreezeDoneInfo) {
				if info.Error != nil {
					warn(l, "freeze failed", info.Error,
						zap.Int("targets", start.Targets),
					)
					return
				}
				l.Info("continuum built",
					zap.Int("targets", start.Targets),
					zap.Int("virtual_nodes", info.VirtualNodes),
					zap.Duration("latency", info.Latency),
				)
			}
		},
		OnLookup: func(start chash.LookupStartInfo) func(chash.LookupDoneInfo) {
			return func(info chash.LookupDoneInfo) {
				if info.Error != nil {
					warn(l, "lookup failed", info.Error,
						zap.String("key", start.Key),
						zap.Int("count", start.Count),
						zap.Bool("balance", start.Balance),
					)
					return
				}
				if ce := l.Check(zap.DebugLevel, "lookup"); ce != nil {
					ce.Write(
						zap.String("key", start.Key),
						zap.Int("count", start.Count),
						zap.Bool("balance", start.Balance),
						zap.Strings("targets", info.Targets),
					)
				}
			}
		},
		OnMarshal: func() func(chash.MarshalDoneInfo) {
			return func(info chash.MarshalDoneInfo) {
				if info.Error != nil {
					warn(l, "marshal failed", info.Error)
					return
				}
				l.Debug("ring marshaled", zap.Int("size", info.Size))
			}
		},
		OnUnmarshal: func(start chash.UnmarshalStartInfo) func(chash.UnmarshalDoneInfo) {
			return func(info chash.UnmarshalDoneInfo) {
				if info.Error != nil {
					warn(l, "unmarshal failed", info.Error,
						zap.Int("size", start.Size),
					)
					return
				}
				l.Info("ring decoded",
					zap.Int("size", start.Size),
					zap.Int("targets", info.Targets),
					zap.Int("virtual_nodes", info.VirtualNodes),
				)
			}
		},
	}
}

func warn(l *zap.Logger, msg string, err error, fields ...zap.Field) {
	l.Warn(msg, append(fields,
		zap.String("kind", chash.KindOf(err)),
		zap.Error(err),
	)...)
}
