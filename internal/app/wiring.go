package app

import (
	"context"
	"fmt"
	"strconv"

	"geoquiz/internal/app/observability"
	"geoquiz/internal/flow"
	"geoquiz/internal/notify"
	"geoquiz/internal/platform/logger"
	"geoquiz/internal/session"

	"github.com/redis/go-redis/v9"
)

type countingCompleter struct {
	next session.Completer
	col  *observability.Collector
}

// CountOutcomes records every finished session on the collector.
func CountOutcomes(next session.Completer, col *observability.Collector) session.Completer {
	return &countingCompleter{next: next, col: col}
}

func (c *countingCompleter) Complete(ctx context.Context, st flow.State) flow.Outcome {
	out := c.next.Complete(ctx, st)
	c.col.Inc(fmt.Sprintf("geoquiz_sessions_finalized_total{variant=%q,delivered=%q}", st.Variant, strconv.FormatBool(out.Delivered)))
	return out
}

// NewMailer returns nil, not a typed nil, when SMTP is not configured.
func NewMailer(cfg Config) notify.Mailer {
	m := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Pass:     cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		StartTLS: cfg.SMTPStartTLS,
		Timeout:  cfg.SMTPTimeout,
	})
	if m == nil {
		return nil
	}
	return m
}

// NewStore picks the session store named by SESSION_STORE. The returned
// close func releases the redis client, if any.
func NewStore(ctx context.Context, cfg Config, col *observability.Collector, log *logger.Logger) (session.Store, func() error, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch cfg.SessionStore {
	case "", "memory":
		s := session.NewMemoryStore(cfg.SessionTTL)
		if col != nil {
			col.Gauge("geoquiz_memory_sessions", func() float64 { return float64(s.Len()) })
		}
		return s, func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		log.Info("session store ready", "store", "redis", "addr", cfg.RedisAddr)
		return session.NewRedisStore(client, cfg.SessionTTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}
