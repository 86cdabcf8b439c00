package oscillator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
)

// Factory создаёт осциллятор по конфигу
type Factory func(cfg *config.Config) (Oscillator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register добавляет модель в реестр. Вызывается из init() бэкендов.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("oscillator: model registered twice: " + name)
	}
	registry[name] = f
}

// Models возвращает имена зарегистрированных моделей
func Models() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New создаёт осциллятор модели из ключа "oscillator".
func New(cfg *config.Config) (Oscillator, error) {
	name, ok := cfg.Get("oscillator")
	if !ok || name == "" {
		return nil, fmt.Errorf("oscillator not defined in config %s", cfg.Path())
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownModel, name, Models())
	}
	o, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("oscillator %s: %w", name, err)
	}
	return o, nil
}
