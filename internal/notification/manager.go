package notification

import (
	"fmt"
	"sync"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/logger"
)

var (
	instance *Dispatcher
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global dispatcher from settings. The notifier is a
// shoutrrr router when URLs are configured and the log notifier otherwise;
// an invalid URL list falls back to the log notifier.
func Initialize(settings *conf.NotificationSettings, log logger.Logger, opts ...Option) *Dispatcher {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = NewDispatcher(notifierFor(settings, log), ConfigFromSettings(settings), log, opts...)
	})
	return GetDispatcher()
}

func notifierFor(settings *conf.NotificationSettings, log logger.Logger) Notifier {
	if len(settings.URLs) == 0 {
		return NewLogNotifier(log)
	}
	n, err := NewShoutrrrNotifier(settings.URLs, log)
	if err != nil {
		if log != nil {
			log.Warn("falling back to log notifications", logger.Error(err))
		}
		return NewLogNotifier(log)
	}
	return n
}

// GetDispatcher returns the global dispatcher instance.
func GetDispatcher() *Dispatcher {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetDispatcherForTesting installs d as the global instance. It returns an
// error if one is already set.
func SetDispatcherForTesting(d *Dispatcher) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return fmt.Errorf("notification dispatcher already initialized")
	}

	instance = d
	return nil
}

// IsInitialized checks if the global dispatcher has been set.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
