package logger

import (
	"time"

	"go.uber.org/zap"
)

func CampaignID(v string) zap.Field { return zap.String("campaign_id", v) }

func ContactID(v string) zap.Field { return zap.String("contact_id", v) }

func TemplateID(v string) zap.Field { return zap.String("template_id", v) }

// Email tags a recipient address. Keep it out of info-level lines in prod.
func Email(v string) zap.Field { return zap.String("email", v) }

func Status(v string) zap.Field { return zap.String("status", v) }

func DryRun(v bool) zap.Field { return zap.Bool("dry_run", v) }

func Component(v string) zap.Field { return zap.String("component", v) }

func Count(v int) zap.Field { return zap.Int("count", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }
