package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const feeScheduleKey = "fee_schedule"

type FeeScheduleHolder struct {
	current atomic.Value // holds feedomain.Schedule
}

// NewFeeScheduleHolder loads feeschedule.yml from path, or from the default
// search paths when path is empty, and reloads it when the file changes.
// A missing file falls back to the compiled-in schedule.
func NewFeeScheduleHolder(path string) (*FeeScheduleHolder, error) {
	v := newFeeScheduleViper(path)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	schedule := feedomain.DefaultSchedule()
	if found {
		loaded, err := decodeFeeSchedule(v)
		if err != nil {
			return nil, err
		}
		schedule = loaded
	}

	holder := &FeeScheduleHolder{}
	holder.current.Store(schedule)

	if !found {
		zap.L().Info("fee schedule file not found, using builtin schedule",
			zap.String("version", schedule.Version),
		)
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeFeeSchedule(v)
		if err != nil {
			zap.L().Warn("fee schedule reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("fee schedule reloaded",
			zap.String("file", e.Name),
			zap.String("version", updated.Version),
		)
	})
	v.WatchConfig()

	return holder, nil
}

// LoadFeeSchedule reads a schedule file once without watching it.
func LoadFeeSchedule(path string) (feedomain.Schedule, error) {
	if strings.TrimSpace(path) == "" {
		return feedomain.DefaultSchedule(), nil
	}
	v := newFeeScheduleViper(path)
	if err := v.ReadInConfig(); err != nil {
		return feedomain.Schedule{}, err
	}
	return decodeFeeSchedule(v)
}

func (h *FeeScheduleHolder) Schedule() feedomain.Schedule {
	return h.current.Load().(feedomain.Schedule)
}

func newFeeScheduleViper(path string) *viper.Viper {
	v := viper.New()
	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
			v.SetConfigType("yml")
		}
		return v
	}

	v.SetConfigName("feeschedule")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/agentdesk")
	v.AddConfigPath(".")
	return v
}

func decodeFeeSchedule(v *viper.Viper) (feedomain.Schedule, error) {
	var schedule feedomain.Schedule
	if err := v.UnmarshalKey(feeScheduleKey, &schedule); err != nil {
		return feedomain.Schedule{}, err
	}
	if err := schedule.Validate(); err != nil {
		return feedomain.Schedule{}, err
	}
	return schedule, nil
}
