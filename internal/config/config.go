// Package config — конфигурация oscillatord: плоский набор ключ → значение.
// Формат файла: YAML (по умолчанию), TOML (расширение .toml) или исторический key=value.
// Значения хранятся строками; типизированный разбор — в Get*-методах.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config — разобранный файл конфигурации
type Config struct {
	path   string
	values map[string]string
}

// FromMap создаёт конфиг из готовых значений (тесты, встраивание).
func FromMap(path string, values map[string]string) *Config {
	c := &Config{path: path, values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Load читает конфиг из файла; формат выбирается по расширению и содержимому.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var values map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		values, err = parseTOML(data)
	case ".yml", ".yaml":
		values, err = parseYAML(data)
	default:
		values, err = parseYAML(data)
		if err != nil {
			values, err = parseKeyValue(data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &Config{path: path, values: values}, nil
}

// Path возвращает путь к файлу, из которого загружен конфиг.
func (c *Config) Path() string {
	return c.path
}

// Keys возвращает отсортированный список ключей.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get возвращает значение ключа и признак наличия.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetDefault возвращает значение ключа или def, если ключ не задан.
func (c *Config) GetDefault(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// GetBool разбирает булево значение; при отсутствии ключа возвращает def.
func (c *Config) GetBool(key string, def bool) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return def, fmt.Errorf("%s: invalid boolean %q", key, v)
}

// GetUint разбирает беззнаковое целое (допускаются префиксы 0x, 0o, 0b).
func (c *Config) GetUint(key string, def uint64) (uint64, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// GetInt разбирает знаковое целое.
func (c *Config) GetInt(key string, def int64) (int64, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// GetFloat разбирает число с плавающей точкой.
func (c *Config) GetFloat(key string, def float64) (float64, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// GetDuration разбирает длительность ("5s", "500ms"); число без единиц — секунды.
func (c *Config) GetDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// GetList разбирает список через запятую; пустые элементы отбрасываются.
func (c *Config) GetList(key string) []string {
	v, ok := c.values[key]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseYAML(data []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	values := make(map[string]string)
	if doc.Kind == 0 {
		return values, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			values[key] = val.Value
		case yaml.SequenceNode:
			items := make([]string, 0, len(val.Content))
			for _, it := range val.Content {
				if it.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("%s: nested values are not supported", key)
				}
				items = append(items, it.Value)
			}
			values[key] = strings.Join(items, ",")
		default:
			return nil, fmt.Errorf("%s: nested values are not supported", key)
		}
	}
	return values, nil
}

func parseTOML(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case map[string]interface{}:
			return nil, fmt.Errorf("%s: tables are not supported", k)
		case []interface{}:
			items := make([]string, 0, len(t))
			for _, it := range t {
				items = append(items, fmt.Sprint(it))
			}
			values[k] = strings.Join(items, ",")
		default:
			values[k] = fmt.Sprint(t)
		}
	}
	return values, nil
}

// parseKeyValue — исторический формат: строки key=value, комментарии с '#'.
func parseKeyValue(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key=value", lineNo)
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return values, sc.Err()
}
